package controllers

import (
	"net/http"

	"github.com/angelmondragon/orderdesk-backend/api/middleware"
	"github.com/angelmondragon/orderdesk-backend/api/responses"
	"github.com/angelmondragon/orderdesk-backend/api/validators"
	"github.com/angelmondragon/orderdesk-backend/internal/contacts"
	"github.com/angelmondragon/orderdesk-backend/pkg/logger"
)

type contactUpdateRequest struct {
	ID        validators.FlexID `json:"id"`
	City      *string           `json:"city,omitempty"`
	Street    *string           `json:"street,omitempty"`
	House     *string           `json:"house,omitempty"`
	Structure *string           `json:"structure,omitempty"`
	Building  *string           `json:"building,omitempty"`
	Apartment *string           `json:"apartment,omitempty"`
	Phone     *string           `json:"phone,omitempty"`
}

type itemsRequest struct {
	Items validators.IDList `json:"items"`
}

func ContactList(svc contacts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context(), middleware.CallerFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, responses.Fields{"results": list})
	}
}

func ContactCreate(svc contacts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body contacts.ContactInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		created, err := svc.Create(r.Context(), middleware.CallerFromContext(r.Context()), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, responses.Fields{"contact": created})
	}
}

func ContactUpdate(svc contacts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body contactUpdateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		update := contacts.ContactUpdate{
			ID:        uint64(body.ID),
			City:      body.City,
			Street:    body.Street,
			House:     body.House,
			Structure: body.Structure,
			Building:  body.Building,
			Apartment: body.Apartment,
			Phone:     body.Phone,
		}
		if err := svc.Update(r.Context(), middleware.CallerFromContext(r.Context()), update); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

// ContactDelete removes the caller's contacts listed in "items", taken from
// the body or the query string.
func ContactDelete(svc contacts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := itemsArgument(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		deleted, err := svc.Delete(r.Context(), middleware.CallerFromContext(r.Context()), raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, responses.Fields{"Deleted": deleted})
	}
}

func itemsArgument(r *http.Request) (string, error) {
	var body itemsRequest
	if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
		return "", err
	}
	if body.Items != "" {
		return string(body.Items), nil
	}
	return r.URL.Query().Get("items"), nil
}
