// Package schema types the start parameters of a saga.
//
// A schema maps parameter names to types. Types are written as short strings in
// templates:
//
//	parameters:
//	  order_id: string
//	  amount: float
//	  items: "[object]"
//	  note: string?
//
// A trailing "?" marks a parameter optional. Validation reports every failure at
// once as an *AggregateError.
package schema
