// Package services provides the centralized service registry for rallyd.
//
// Registry pattern for accessing the core services (store, roster
// profiles, extraction pipeline, intent classifier, session service,
// notification dispatcher). Use NewRegistry() to create a registry with
// service instances, then accessor methods to retrieve individual
// services.
package services
