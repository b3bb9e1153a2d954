// Package payload defines the execution payload envelope passed between a
// consensus client and an execution client.
//
// The types here carry no wire representation. Encoding lives in package
// codec so the records stay independent of any single format.
package payload
