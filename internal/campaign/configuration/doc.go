/*
Package configuration defines the campaign file read by cliffbench explore.

A campaign names a set of workloads, the experiment groups, and says how to search each of them for the load at
which the system under test stops coping. Every group is searched independently, then re-measured at the boundaries
its siblings reached.

# Example YAML Configuration

	name: vote
	sense: max
	search:
	  kind: exponential
	  start: 100
	  step: 100
	policy:
	  maxMedianSojourn: 50ms
	  maxThroughputShortfall: 0.05
	  minSuccessRatio: 0.99
	outputDir: results/vote
	groups:
	  - name: small
	    duration: 30s
	    warmup: 2s
	    targets:
	      - url: http://localhost:8080/vote?size=small
	  - name: large
	    duration: 30s
	    targets:
	      - method: POST
	        url: http://localhost:8080/vote
	        body: '{"size":"large"}'
	        header:
	          content-type: application/json

Loads and search bounds are unsigned integers, which may be written as Kubernetes quantities: 2k is 2000 and 1Mi is
1048576. Durations use Go syntax.

With sense min the probe is a worker budget rather than a request rate, so every group must then set a rate, and the
binarymin search is the natural choice:

	sense: min
	search:
	  kind: binarymin
	  hi: 256
	  resolution: 4
*/
package configuration
