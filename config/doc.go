// Package config loads a2aflow process configuration from YAML files and the
// environment.
//
// Values are resolved in the following order, highest first: A2AFLOW_*
// environment variables (nested keys joined by underscores, e.g.
// A2AFLOW_SERVER_PORT), the configuration file, then defaults. String values
// may reference the environment with ${VAR} or ${VAR:-fallback}.
//
//	server:
//	  port: 9000
//	  token: ${A2AFLOW_TOKEN}
//	models:
//	  default: openai
//	  providers:
//	    - name: openai
//	      type: openai
//	      model: gpt-4o-mini
//	      api_key: ${OPENAI_API_KEY}
//	workflows:
//	  - workflows/*.yaml
package config
