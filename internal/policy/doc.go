// Package policy normalizes architectural policy declarations and matches
// them against parsed file metadata.
//
// A policy file is YAML:
//
//	policies:
//	  - id: RULE-1
//	    description: No legacy IO outside adapters
//	    severity: strict            # strict | advisory (default advisory)
//	    language: cpp               # or "all" (default)
//	    scope:
//	      module_glob: "src/**"
//	      function_regex: "^handle"
//	    forbidden_imports: ["**/legacy/**"]
//	    required_imports: ["core/*.h"]
//	    forbidden_calls: [printf]
//	    required_calls: [log_init]
//	    origin: DEC-7               # decision implemented by this policy
//	ci:
//	  maxEntropyScore: 0.5
//
// Normalization happens once per file version: entries without id or
// description are dropped, call names are lower-cased, and glob/regex
// matchers are compiled and held by reference. Evaluation is pure and
// deterministic: results follow declaration order and violations follow
// import/call parse order.
package policy
