// Package provider defines the uniform capability contract over
// heterogeneous LLM backends and the registry that ranks them for
// fallback.
//
// Adapters translate between the pipeline's call shape and their
// backend's wire protocol, and map backend failures onto the api error
// taxonomy. Retry-with-fallback across adapters is NOT implemented here;
// that is the orchestrator's job, driven by the ordered candidate lists
// the Registry produces.
package provider
