// Package contacts implements the contact registry: distribution lists,
// single-contact add/remove with duplicate detection, and bulk CSV import.
//
// Email uniqueness is enforced per list on the normalized (trimmed,
// lowercased) address; the stored address keeps its original casing.
// The service layer contains pure business logic over the Repository
// interface and never imports net/http or database/sql.
package contacts
