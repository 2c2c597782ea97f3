package main

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"patchmcp/internal/formats"
	"patchmcp/internal/params"
	"patchmcp/internal/session"
	"patchmcp/internal/sysex"
)

var flagListen string

func init() {
	serveCmd.Flags().StringVar(&flagListen, "listen", "", "listen address (default from config)")
	serveCmd.Flags().BoolVar(&flagOffline, "offline", false, "serve codec endpoints only, without opening MIDI ports")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the codec and the current session over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		var sess *session.Session
		if !flagOffline {
			port, closer, err := a.connect()
			if err != nil {
				return err
			}
			defer closer()
			if sess, err = a.session(port); err != nil {
				return err
			}
			defer sess.Close()
		}
		addr := a.cfg.Listen
		if flagListen != "" {
			addr = flagListen
		}
		log.Printf("[http] listening on %s", addr)
		return http.ListenAndServe(addr, newRouter(a.reg, sess))
	},
}

type api struct {
	reg  *formats.Registry
	sess *session.Session
}

func newRouter(reg *formats.Registry, sess *session.Session) http.Handler {
	a := &api{reg: reg, sess: sess}
	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/formats", a.handleFormats).Methods("GET")
	router.HandleFunc("/formats/{vendor}/{kind}", a.handleSchema).Methods("GET")
	router.HandleFunc("/formats/{vendor}/{kind}/emit", a.handleEmit).Methods("POST")
	router.HandleFunc("/formats/{vendor}/{kind}/emit-bank", a.handleEmitBank).Methods("POST")
	router.HandleFunc("/formats/{vendor}/{kind}/request", a.handleRequest).Methods("GET")
	router.HandleFunc("/parse", a.handleParse).Methods("POST")
	if sess != nil {
		router.HandleFunc("/session", a.handleSession).Methods("GET")
		router.HandleFunc("/session/params/{name}", a.handleSetParam).Methods("PUT")
		router.HandleFunc("/session/fetch", a.handleFetch).Methods("POST")
		router.HandleFunc("/session/write", a.handleWrite).Methods("POST")
	}

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
	})
	return c.Handler(router)
}

type errorJSON struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[http] encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	var de *sysex.DeviceError
	switch {
	case errors.As(err, &de):
		status = http.StatusBadGateway
	case errors.Is(err, session.ErrNoTransport):
		status = http.StatusServiceUnavailable
	}
	log.Printf("[http] %d: %v", status, err)
	writeJSON(w, status, errorJSON{Error: err.Error()})
}

func (a *api) format(r *http.Request) (formats.Format, error) {
	v := mux.Vars(r)
	return a.reg.Get(v["vendor"] + "/" + v["kind"])
}

func (a *api) handleFormats(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		ID          string        `json:"id"`
		Description string        `json:"description"`
		Shapes      []sysex.Shape `json:"shapes"`
	}
	out := make([]entry, 0)
	for _, id := range a.reg.IDs() {
		f, _ := a.reg.Get(id)
		out = append(out, entry{ID: id, Description: f.Description(), Shapes: f.Shapes()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) handleSchema(w http.ResponseWriter, r *http.Request) {
	f, err := a.format(r)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorJSON{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, f.Schema().Defs())
}

type sysexJSON struct {
	Sysex string `json:"sysex"`
}

func (a *api) handleEmit(w http.ResponseWriter, r *http.Request) {
	f, err := a.format(r)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorJSON{Error: err.Error()})
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	s, err := decodePatch(f, body)
	if err != nil {
		writeError(w, err)
		return
	}
	msg, err := f.Emit(s)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sysexJSON{Sysex: sysex.Hex(msg)})
}

func (a *api) handleEmitBank(w http.ResponseWriter, r *http.Request) {
	f, err := a.format(r)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorJSON{Error: err.Error()})
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	msg, err := emitBank(f, body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sysexJSON{Sysex: sysex.Hex(msg)})
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func (a *api) handleRequest(w http.ResponseWriter, r *http.Request) {
	f, err := a.format(r)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorJSON{Error: err.Error()})
		return
	}
	if r.URL.Query().Get("all") != "" {
		req, err := requestBank(f)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sysexJSON{Sysex: sysex.Hex(req)})
		return
	}
	bank, err := queryInt(r, "bank")
	if err != nil {
		writeError(w, err)
		return
	}
	number, err := queryInt(r, "number")
	if err != nil {
		writeError(w, err)
		return
	}
	req, err := f.RequestDump(bank, number)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sysexJSON{Sysex: sysex.Hex(req)})
}

func (a *api) handleParse(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	var in sysexJSON
	if json.Unmarshal(body, &in) == nil && in.Sysex != "" {
		body = []byte(in.Sysex)
	}
	blob, err := decodeSysex(body)
	if err != nil {
		writeError(w, err)
		return
	}
	fs, patches, err := a.reg.DecodeAll(blob)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]patchJSON, len(patches))
	for i, p := range patches {
		out[i] = patchJSON{Format: fs[i].ID(), Patch: p}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		ID      string        `json:"id"`
		Format  string        `json:"format"`
		Patch   *params.Store `json:"patch"`
		Pending []string      `json:"pending"`
	}{a.sess.ID, a.sess.Format.ID(), a.sess.Snapshot(), a.sess.Pending()})
}

func (a *api) handleSetParam(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Value *int    `json:"value"`
		Text  *string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, err)
		return
	}
	name := mux.Vars(r)["name"]
	switch {
	case in.Text != nil:
		a.sess.SetText(name, *in.Text)
	case in.Value != nil:
		if err := a.sess.Set(name, *in.Value); err != nil {
			writeError(w, err)
			return
		}
	default:
		writeError(w, errors.New(`body needs "value" or "text"`))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleFetch(w http.ResponseWriter, r *http.Request) {
	bank, err := queryInt(r, "bank")
	if err != nil {
		writeError(w, err)
		return
	}
	number, err := queryInt(r, "number")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := a.sess.Fetch(r.Context(), bank, number); err != nil {
		writeError(w, err)
		return
	}
	a.handleSession(w, r)
}

func (a *api) handleWrite(w http.ResponseWriter, r *http.Request) {
	if err := a.sess.Write(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
