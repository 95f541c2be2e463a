// Package strategies holds the rewrite rules the planner uses to resolve
// recipes. Each constructor returns a strategizer.Strategy; most are rules
// driven by the walker over the previous round's survivors.
package strategies
