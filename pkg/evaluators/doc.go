// Package evaluators provides fitness evaluators for the strategizer beyond
// the Rego policies of package policy.
//
// Resolution scores a candidate by how much of it is already resolved, which
// steers the search toward complete recipes.
//
// Script delegates scoring to a Starlark program that defines
//
//	def fitness(recipe):
//	    ...
//
// or fitness(recipe, context). recipe is the candidate's recipe.Document as
// nested dicts and lists; context holds "generation" and "score". The
// function returns a number in [0, 1] or None for no opinion.
//
// Plugin does the same with a WebAssembly module run by wazero, exchanging
// JSON through the module's linear memory.
package evaluators
