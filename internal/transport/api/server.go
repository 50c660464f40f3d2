// Package api exposes the life-support service to remote device controllers over JSON/HTTP.
//
// Device endpoints live under /v1 and admin endpoints under /admin/v1. Admin endpoints
// only answer loopback clients unless AllowRemoteAdmin is set.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"lifesupport.ai/internal/protocol"
	"lifesupport.ai/internal/sim/lifesupport"
	"lifesupport.ai/internal/sim/planets"
	"lifesupport.ai/internal/sim/tuning"
	"lifesupport.ai/internal/sim/zone"
)

// PlanetRecorder is told about every successfully reloaded planet catalog.
type PlanetRecorder interface {
	UpsertPlanets(cat *planets.Catalog) error
}

type Config struct {
	Service *lifesupport.Service
	Planets *planets.Catalog
	// PlanetsPath is re-read by the planets reload endpoint.
	PlanetsPath string
	Recorder    PlanetRecorder
	Limits      tuning.Limits
	Logger      *log.Logger

	AllowRemoteAdmin bool
}

type Server struct {
	svc         *lifesupport.Service
	planets     *planets.Catalog
	planetsPath string
	recorder    PlanetRecorder
	limits      tuning.Limits
	log         *log.Logger

	allowRemoteAdmin bool
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		svc:              cfg.Service,
		planets:          cfg.Planets,
		planetsPath:      cfg.PlanetsPath,
		recorder:         cfg.Recorder,
		limits:           cfg.Limits,
		log:              logger,
		allowRemoteAdmin: cfg.AllowRemoteAdmin,
	}
}

// Register mounts every endpoint on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/oxygen/apply", s.post(s.handleOxygenApply))
	mux.HandleFunc("/v1/oxygen/remove", s.post(s.handleOxygenRemove))
	mux.HandleFunc("/v1/gravity/apply", s.post(s.handleGravityApply))
	mux.HandleFunc("/v1/gravity/remove", s.post(s.handleGravityRemove))
	mux.HandleFunc("/v1/probe", s.handleProbe)

	mux.HandleFunc("/admin/v1/state", s.admin(http.MethodGet, s.handleState))
	mux.HandleFunc("/admin/v1/worlds/unload", s.admin(http.MethodPost, s.handleUnload))
	mux.HandleFunc("/admin/v1/planets/reload", s.admin(http.MethodPost, s.handlePlanetsReload))
}

func (s *Server) post(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(rw, r)
	}
}

func (s *Server) admin(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowRemoteAdmin && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

// requestError carries the protocol error code back to the handler.
type requestError struct {
	status int
	code   string
	msg    string
}

func (e *requestError) Error() string { return e.code + ": " + e.msg }

func badRequest(code, format string, args ...any) error {
	status := http.StatusBadRequest
	if code == protocol.ErrTooLarge {
		status = http.StatusRequestEntityTooLarge
	}
	return &requestError{status: status, code: code, msg: fmt.Sprintf(format, args...)}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, err error) {
	var re *requestError
	if errors.As(err, &re) {
		writeJSON(rw, re.status, protocol.ErrorResp{Code: re.code, Message: re.msg})
		return
	}
	writeJSON(rw, http.StatusInternalServerError, protocol.ErrorResp{Code: protocol.ErrInternal, Message: err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 64<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest(protocol.ErrProtoBadRequest, "decode body: %v", err)
	}
	return nil
}

func parseWorld(raw string) (zone.WorldSpace, error) {
	w := strings.TrimSpace(raw)
	if w == "" {
		return "", badRequest(protocol.ErrInvalidTarget, "missing world")
	}
	return zone.WorldSpace(w), nil
}

func (s *Server) decodeApply(r *http.Request) (protocol.ApplyReq, zone.WorldSpace, zone.CoordSet, error) {
	var req protocol.ApplyReq
	if err := decodeBody(r, &req); err != nil {
		return req, "", nil, err
	}
	ws, err := parseWorld(req.World)
	if err != nil {
		return req, "", nil, err
	}
	if limit := s.limits.MaxCoordsPerRequest; limit > 0 && len(req.Coords) > limit {
		return req, "", nil, badRequest(protocol.ErrTooLarge, "%s coords exceeds limit %s",
			humanize.Comma(int64(len(req.Coords))), humanize.Comma(int64(limit)))
	}
	set := make(zone.CoordSet, len(req.Coords))
	for _, c := range req.Coords {
		set.Add(zone.CoordFromArray(c))
	}
	return req, ws, set, nil
}

func applyResp(requested, granted zone.CoordSet) protocol.ApplyResp {
	resp := protocol.ApplyResp{Granted: [][3]int{}, Denied: len(requested) - len(granted)}
	for _, c := range granted.Sorted() {
		resp.Granted = append(resp.Granted, c.ToArray())
	}
	return resp
}

func (s *Server) handleOxygenApply(rw http.ResponseWriter, r *http.Request) {
	req, ws, set, err := s.decodeApply(r)
	if err != nil {
		writeError(rw, err)
		return
	}
	granted := s.svc.ApplyOxygen(ws, zone.CoordFromArray(req.Anchor), set)
	writeJSON(rw, http.StatusOK, applyResp(set, granted))
}

func (s *Server) handleGravityApply(rw http.ResponseWriter, r *http.Request) {
	req, ws, set, err := s.decodeApply(r)
	if err != nil {
		writeError(rw, err)
		return
	}
	if req.Gravity == nil {
		writeError(rw, badRequest(protocol.ErrBadRequest, "missing gravity"))
		return
	}
	g := *req.Gravity
	if math.IsNaN(g) || math.IsInf(g, 0) || g < s.limits.MinGravity || g > s.limits.MaxGravity {
		writeError(rw, badRequest(protocol.ErrBadRequest, "gravity %v outside [%v, %v]", g, s.limits.MinGravity, s.limits.MaxGravity))
		return
	}
	granted := s.svc.ApplyGravity(ws, zone.CoordFromArray(req.Anchor), set, g)
	writeJSON(rw, http.StatusOK, applyResp(set, granted))
}

func (s *Server) decodeRemove(r *http.Request) (zone.WorldSpace, zone.Coord, error) {
	var req protocol.RemoveReq
	if err := decodeBody(r, &req); err != nil {
		return "", zone.Coord{}, err
	}
	ws, err := parseWorld(req.World)
	if err != nil {
		return "", zone.Coord{}, err
	}
	return ws, zone.CoordFromArray(req.Anchor), nil
}

func (s *Server) handleOxygenRemove(rw http.ResponseWriter, r *http.Request) {
	ws, anchor, err := s.decodeRemove(r)
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, protocol.RemoveResp{Released: s.svc.RemoveOxygen(ws, anchor)})
}

func (s *Server) handleGravityRemove(rw http.ResponseWriter, r *http.Request) {
	ws, anchor, err := s.decodeRemove(r)
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, protocol.RemoveResp{Released: s.svc.RemoveGravity(ws, anchor)})
}

func (s *Server) handleProbe(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	ws, err := parseWorld(q.Get("world"))
	if err != nil {
		writeError(rw, err)
		return
	}
	var pos [3]int
	for i, k := range []string{"x", "y", "z"} {
		v, err := strconv.Atoi(q.Get(k))
		if err != nil {
			writeError(rw, badRequest(protocol.ErrBadRequest, "bad %s: %q", k, q.Get(k)))
			return
		}
		pos[i] = v
	}

	p := s.svc.Probe(ws, zone.CoordFromArray(pos))
	resp := protocol.ProbeResp{
		World:             string(ws),
		Pos:               pos,
		DefaultAtmosphere: p.DefaultAtmosphere,
		OxygenZone:        p.OxygenZone,
		Breathable:        p.Breathable,
		Gravity:           p.Gravity,
	}
	if p.OxygenOwner != nil {
		a := p.OxygenOwner.ToArray()
		resp.OxygenOwner = &a
	}
	if p.GravityOwner != nil {
		a := p.GravityOwner.ToArray()
		resp.GravityOwner = &a
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (s *Server) handleState(rw http.ResponseWriter, r *http.Request) {
	resp := protocol.StateResp{ProtocolVersion: protocol.Version, Worlds: []protocol.WorldStats{}}
	if s.planets != nil {
		resp.PlanetsDigest = s.planets.Digest()
	}
	for _, ws := range s.svc.WorldSpaces() {
		resp.Worlds = append(resp.Worlds, s.svc.Stats(ws))
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (s *Server) handleUnload(rw http.ResponseWriter, r *http.Request) {
	var req protocol.UnloadReq
	if err := decodeBody(r, &req); err != nil {
		writeError(rw, err)
		return
	}
	ws, err := parseWorld(req.World)
	if err != nil {
		writeError(rw, err)
		return
	}
	before := s.svc.Stats(ws)
	s.svc.UnloadWorldSpace(ws)
	writeJSON(rw, http.StatusOK, before)
}

func (s *Server) handlePlanetsReload(rw http.ResponseWriter, r *http.Request) {
	if s.planets == nil || s.planetsPath == "" {
		writeError(rw, &requestError{status: http.StatusNotFound, code: protocol.ErrNotFound, msg: "no planets file configured"})
		return
	}
	if err := s.planets.Load(s.planetsPath); err != nil {
		s.log.Printf("planets reload failed: %v", err)
		writeError(rw, err)
		return
	}
	s.svc.ReloadPlanetData()
	if s.recorder != nil {
		if err := s.recorder.UpsertPlanets(s.planets); err != nil {
			s.log.Printf("planets index: %v", err)
		}
	}
	s.log.Printf("planets reloaded: %d worlds digest=%s", len(s.planets.List()), s.planets.Digest())
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "digest": s.planets.Digest(), "worlds": len(s.planets.List())})
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
