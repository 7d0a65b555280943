package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/lidarstack/pc-server/greyhound"
	"github.com/lidarstack/pc-server/log"
	"github.com/lidarstack/pc-server/repository"
	"github.com/lidarstack/pc-server/schema"
	"github.com/lidarstack/pc-server/threedtiles"
)

// RestApi mounts the streaming protocols onto a router. It is thin glue:
// parse parameters, call the services, translate error kinds to status codes.
type RestApi struct {
	Greyhound *greyhound.Service
	Tilesets  *threedtiles.Builder
}

func (api *RestApi) MountRoutes(r *mux.Router) {
	r.StrictSlash(true)

	r.HandleFunc("/greyhound/{table}/{column}/info", api.info).Methods(http.MethodGet)
	r.HandleFunc("/greyhound/{table}/{column}/read", api.read).Methods(http.MethodGet)
	r.HandleFunc("/greyhound/{table}/{column}/hierarchy", api.hierarchy).Methods(http.MethodGet)

	r.HandleFunc("/3dtiles/{table}/{column}/tileset.json", api.tileset).Methods(http.MethodGet)
}

type ErrorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func handleError(err error, rw http.ResponseWriter) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, greyhound.ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	}

	log.Warnf("REST API: %s", err.Error())
	rw.Header().Add("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(ErrorResponse{
		Status: http.StatusText(status),
		Error:  err.Error(),
	})
}

func (api *RestApi) info(rw http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	doc, err := api.Greyhound.Info(r.Context(), vars["table"], vars["column"])
	if err != nil {
		handleError(err, rw)
		return
	}

	rw.Header().Set("Content-Type", "text/plain")
	json.NewEncoder(rw).Encode(doc)
}

func (api *RestApi) read(rw http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	q := r.URL.Query()

	params := &greyhound.ReadParams{
		Table:  vars["table"],
		Column: vars["column"],
	}

	var err error
	if params.Bounds, err = optLocalBbox(q.Get("bounds")); err != nil {
		handleError(fmt.Errorf("%w: %s", greyhound.ErrBadRequest, err), rw)
		return
	}
	if params.Depth, err = optInt(q.Get("depth")); err != nil {
		handleError(fmt.Errorf("%w: depth: %s", greyhound.ErrBadRequest, err), rw)
		return
	}
	if params.DepthBegin, err = optInt(q.Get("depthBegin")); err != nil {
		handleError(fmt.Errorf("%w: depthBegin: %s", greyhound.ErrBadRequest, err), rw)
		return
	}
	if params.DepthEnd, err = optInt(q.Get("depthEnd")); err != nil {
		handleError(fmt.Errorf("%w: depthEnd: %s", greyhound.ErrBadRequest, err), rw)
		return
	}
	if params.Scale, err = optFloat(q.Get("scale")); err != nil {
		handleError(fmt.Errorf("%w: scale: %s", greyhound.ErrBadRequest, err), rw)
		return
	}
	if params.Offset, err = optTriple(q.Get("offset")); err != nil {
		handleError(fmt.Errorf("%w: offset: %s", greyhound.ErrBadRequest, err), rw)
		return
	}
	if params.Dimensions, err = optSchema(q.Get("schema")); err != nil {
		handleError(fmt.Errorf("%w: schema: %s", greyhound.ErrBadRequest, err), rw)
		return
	}

	frame, err := api.Greyhound.Read(r.Context(), params)
	if err != nil {
		handleError(err, rw)
		return
	}

	rw.Header().Set("Content-Type", "application/octet-stream")
	rw.Write(frame)
}

func (api *RestApi) hierarchy(rw http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	q := r.URL.Query()

	params := &greyhound.HierarchyParams{
		Table:  vars["table"],
		Column: vars["column"],
	}

	box, err := schema.ParseBbox(trimList(q.Get("bounds")))
	if err != nil {
		handleError(fmt.Errorf("%w: %s", greyhound.ErrBadRequest, err), rw)
		return
	}
	params.Bounds = box

	if params.DepthBegin, err = reqInt(q.Get("depthBegin"), "depthBegin"); err != nil {
		handleError(fmt.Errorf("%w: %s", greyhound.ErrBadRequest, err), rw)
		return
	}
	if params.DepthEnd, err = reqInt(q.Get("depthEnd"), "depthEnd"); err != nil {
		handleError(fmt.Errorf("%w: %s", greyhound.ErrBadRequest, err), rw)
		return
	}
	if params.Scale, err = optFloat(q.Get("scale")); err != nil {
		handleError(fmt.Errorf("%w: scale: %s", greyhound.ErrBadRequest, err), rw)
		return
	}
	if params.Offset, err = optTriple(q.Get("offset")); err != nil {
		handleError(fmt.Errorf("%w: offset: %s", greyhound.ErrBadRequest, err), rw)
		return
	}

	doc, err := api.Greyhound.Hierarchy(r.Context(), params)
	if err != nil {
		handleError(err, rw)
		return
	}

	rw.Header().Set("Content-Type", "text/plain")
	rw.Write(doc)
}

func (api *RestApi) tileset(rw http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	doc, err := api.Tilesets.Tileset(r.Context(), vars["table"], vars["column"])
	if err != nil {
		handleError(err, rw)
		return
	}

	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(doc)
}

// Viewers send list parameters both bare ("1,2,3") and bracketed ("[1,2,3]").
func trimList(s string) string {
	return strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(s), "["), "]")
}

func optInt(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func reqInt(s, name string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	return strconv.Atoi(s)
}

func optFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func optTriple(s string) (*[3]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(trimList(s), ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("expected 3 values, got %d", len(parts))
	}
	var out [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return &out, nil
}

func optLocalBbox(s string) (*schema.LocalBbox, error) {
	if s == "" {
		return nil, nil
	}
	box, err := schema.ParseLocalBbox(trimList(s))
	if err != nil {
		return nil, err
	}
	return &box, nil
}

// optSchema decodes the dimension list viewers attach to read requests.
func optSchema(s string) ([]schema.Dimension, error) {
	if s == "" {
		return nil, nil
	}
	var dims []schema.Dimension
	if err := json.Unmarshal([]byte(s), &dims); err != nil {
		return nil, err
	}
	for _, d := range dims {
		switch d.Interpretation {
		case "signed", "unsigned", "floating":
		default:
			return nil, fmt.Errorf("dimension %s: unknown type %#v", d.Name, d.Interpretation)
		}
		if d.Size <= 0 {
			return nil, fmt.Errorf("dimension %s: bad size %d", d.Name, d.Size)
		}
	}
	return dims, nil
}
