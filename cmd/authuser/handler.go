package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/mindtastic/authuser"
	"github.com/mindtastic/authuser/log"
)

func (a *application) initializeRouter() *httprouter.Router {
	router := httprouter.New()
	// GET /navigate?url=<target>		<--- redirects to target with the default account injected
	router.Handler(http.MethodGet, "/navigate", a.host)
	router.Handler(http.MethodHead, "/navigate", a.host)
	// GET /accounts					<--- resolved default account of every service
	router.GET("/accounts", a.handleListAccounts())
	// GET|PUT|DELETE /accounts/:service
	router.GET("/accounts/:service", withService(a.handleGetAccount()))
	router.PUT("/accounts/:service", withService(a.handleSetAccount()))
	router.DELETE("/accounts/:service", withService(a.handleDeleteAccount()))
	router.GET("/health", a.handleHealthcheck())

	return router
}

func (a *application) handleHealthcheck() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.WriteHeader(http.StatusOK)
	}
}

type accountPayload struct {
	Service string `json:"service,omitempty"`
	Account string `json:"account"`
}

type serviceHandle func(w http.ResponseWriter, r *http.Request, svc authuser.Service)

// withService resolves the :service parameter, answering 404 for unknown services.
func withService(next serviceHandle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		svc, err := authuser.ParseService(ps.ByName("service"))
		if err != nil {
			log.Debugf("rejected request %q: %v", r.RequestURI, err)
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		next(w, r, svc)
	}
}

func (a *application) handleListAccounts() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		accounts := make(map[string]string)
		for _, svc := range authuser.Services() {
			account, err := authuser.DefaultAccount(r.Context(), a.store, svc)
			if err != nil {
				log.Errorf("error listing accounts: %v", err)
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			accounts[svc.Key()] = account
		}
		writeJSON(w, accounts)
	}
}

func (a *application) handleGetAccount() serviceHandle {
	return func(w http.ResponseWriter, r *http.Request, svc authuser.Service) {
		account, err := authuser.DefaultAccount(r.Context(), a.store, svc)
		if err != nil {
			log.Errorf("error getting account for %s: %v", svc, err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, accountPayload{Service: svc.Key(), Account: account})
	}
}

func (a *application) handleSetAccount() serviceHandle {
	return func(w http.ResponseWriter, r *http.Request, svc authuser.Service) {
		var p accountPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			log.Debugf("error decoding JSON body: %v", err)
			http.Error(w, "malformed request: "+err.Error(), http.StatusBadRequest)
			return
		}
		if p.Account == "" {
			http.Error(w, "account must not be empty", http.StatusBadRequest)
			return
		}

		if err := a.store.Set(r.Context(), svc, p.Account); err != nil {
			log.Errorf("error saving account for %s: %v", svc, err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		log.Infof("default account for %s set to %q", svc, p.Account)
		writeJSON(w, accountPayload{Service: svc.Key(), Account: p.Account})
	}
}

func (a *application) handleDeleteAccount() serviceHandle {
	return func(w http.ResponseWriter, r *http.Request, svc authuser.Service) {
		if err := a.store.Delete(r.Context(), svc); err != nil && !errors.Is(err, authuser.ErrNotFound) {
			log.Errorf("error deleting account for %s: %v", svc, err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		log.Infof("default account for %s cleared", svc)
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("error encoding JSON response: %v", err)
	}
}
