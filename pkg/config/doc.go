/*
Package config loads the Master's runtime configuration: environment
name, Journal root, concurrency policy, and the §5 timeout defaults with
optional per-TaskType overrides.

Config is a flat struct, following the teacher's manager.Config/
worker.Config style, loaded from YAML via gopkg.in/yaml.v3 with
environment-variable overrides for the handful of fields operators most
often need to tweak per-deployment without editing a file.
*/
package config
