// Package services wires the productqa components together.
//
// Build constructs every component once from a *config.Config: the catalog
// source, embedding provider, vector index, generator, retriever, composer,
// ingestion pipeline and question service. Callers reach them through the
// Registry accessors and release them with Close. Nothing in the process
// holds these as globals.
package services
