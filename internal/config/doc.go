// Package config loads reactor configuration.
//
// The configuration lives in reactor.json, reactor.yaml or reactor.yml in the
// working directory. Every field is optional; missing fields keep their
// defaults.
//
// # Configuration File Structure
//
//	log:
//	  level: info          # debug, info, warn, error
//	  format: text         # text, json
//	inspector:
//	  addr: localhost:7070
//	  eventBuffer: 256
//	  snapshotInterval: 500ms
//	  maxEventsPerSecond: 0  # 0 means unlimited
//	metrics:
//	  enabled: true
//	  namespace: reactor
//	tracing:
//	  enabled: false
//	  exporter: none       # stdout, none
//	scheduler:
//	  maxJobsPerFlush: 10000
//	  maxJobsPerSecond: 0
//	  onExceeded: throttle # throttle, trip
//	watch:
//	  debounce: 200ms
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    return err
//	}
//	fmt.Println("Inspector:", cfg.Inspector.Addr)
package config
