// Package extract compiles and evaluates the JMESPath expressions that turn a
// decoded query response into candidate records.
//
// An [Expression] is compiled once per configuration epoch. A compile failure
// does not prevent construction; it is carried inside the Expression and
// reported by [Expression.Err] so that the owning node can still be built and
// introspected. Evaluation never aborts a batch: anything that cannot be
// traversed degrades to an empty result.
package extract
