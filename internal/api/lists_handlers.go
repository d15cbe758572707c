package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/civicworks/councilmail/internal/domain"
	"github.com/civicworks/councilmail/internal/pkg/httputil"
	"github.com/civicworks/councilmail/internal/service/contacts"
	"github.com/civicworks/councilmail/internal/tenant"
)

type createListRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type addContactRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (s *Server) handleCreateList(w http.ResponseWriter, r *http.Request) {
	var req createListRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	l, err := s.contacts.CreateList(r.Context(), tenant.FromContext(r.Context()), req.Name, req.Description)
	if err != nil {
		writeContactsError(w, err)
		return
	}
	httputil.Created(w, l)
}

func (s *Server) handleListLists(w http.ResponseWriter, r *http.Request) {
	ls, err := s.contacts.ListLists(r.Context(), tenant.FromContext(r.Context()))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if ls == nil {
		ls = []domain.DistributionList{}
	}
	httputil.OK(w, ls)
}

func (s *Server) handleGetList(w http.ResponseWriter, r *http.Request) {
	l, err := s.contacts.GetList(r.Context(), tenant.FromContext(r.Context()), chi.URLParam(r, "listID"))
	if err != nil {
		writeContactsError(w, err)
		return
	}
	httputil.OK(w, l)
}

func (s *Server) handleDeleteList(w http.ResponseWriter, r *http.Request) {
	if err := s.contacts.DeleteList(r.Context(), tenant.FromContext(r.Context()), chi.URLParam(r, "listID")); err != nil {
		writeContactsError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	page, err := pageRequest(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	p, err := s.contacts.ContactsForList(r.Context(), tenant.FromContext(r.Context()), chi.URLParam(r, "listID"), page)
	if err != nil {
		writeContactsError(w, err)
		return
	}
	httputil.OK(w, p)
}

func (s *Server) handleAddContact(w http.ResponseWriter, r *http.Request) {
	var req addContactRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	c, err := s.contacts.AddContact(r.Context(), tenant.FromContext(r.Context()), chi.URLParam(r, "listID"),
		req.Email, req.FirstName, req.LastName)
	if err != nil {
		writeContactsError(w, err)
		return
	}
	httputil.Created(w, c)
}

func (s *Server) handleRemoveContact(w http.ResponseWriter, r *http.Request) {
	if err := s.contacts.RemoveContact(r.Context(), tenant.FromContext(r.Context()), chi.URLParam(r, "contactID")); err != nil {
		writeContactsError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleImportContacts ingests a CSV body (raw or multipart "file" part)
// into the list. Bad rows are counted, never fatal.
func (s *Server) handleImportContacts(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	if mf, _, err := r.FormFile("file"); err == nil {
		defer mf.Close()
		body = mf
	}

	res, err := s.contacts.Import(r.Context(), tenant.FromContext(r.Context()), chi.URLParam(r, "listID"), body)
	if err != nil {
		if errors.Is(err, contacts.ErrMissingHeader) {
			httputil.BadRequest(w, err.Error())
			return
		}
		writeContactsError(w, err)
		return
	}
	httputil.OK(w, res)
}

func pageRequest(r *http.Request) (contacts.PageRequest, error) {
	q := r.URL.Query()
	page := contacts.PageRequest{
		Sort:       contacts.SortKey(q.Get("sort")),
		Descending: q.Get("order") == "desc",
	}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return page, errors.New("page must be a positive integer")
		}
		page.Page = n
	}
	if v := q.Get("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return page, errors.New("pageSize must be a positive integer")
		}
		page.PageSize = n
	}
	return page, nil
}

func writeContactsError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, contacts.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, contacts.ErrValidation):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, contacts.ErrDuplicateContact):
		httputil.Conflict(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
