// Package domain holds the core entity types shared across services:
// distribution lists, contacts, suppressions, campaigns, and the
// engagement event log. Types here carry no behavior beyond small
// predicates; business logic lives in the service packages.
package domain
