// Package faults defines the closed error taxonomy shared by every
// Stanchion component. Errors carry a kind tag used for dispatching
// recovery behavior (retry whitelists, re-login prompts, report-and-continue)
// instead of matching on error strings or concrete low-level types.
package faults
