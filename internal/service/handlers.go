package service

import (
	"context"
	"fmt"
	"time"

	gloom "github.com/jcalabro/gloomd"
	"github.com/jcalabro/gloomd/internal/codec"
	"github.com/jcalabro/gloomd/internal/metrics"
)

// Action names.
const (
	ActionInit       = "init"
	ActionAdd        = "add"
	ActionAddMany    = "madd"
	ActionExists     = "exists"
	ActionExistsMany = "mexists"
	ActionMerge      = "merge"
	ActionDelete     = "del"
	ActionInfo       = "info"
	ActionList       = "list"
	ActionDump       = "dump"
	ActionRestore    = "restore"
	ActionStatus     = "status"
)

// InitRequest creates a filter. Omitted parameters come from the server's
// defaults. A seed without an error rate, or an error rate without a
// capacity, is rejected.
type InitRequest struct {
	Name      string   `cbor:"name"`
	Capacity  *uint64  `cbor:"capacity,omitempty"`
	ErrorRate *float64 `cbor:"error_rate,omitempty"`
	Seed      *uint64  `cbor:"seed,omitempty"`
}

// ValueRequest carries one value. Value is a pointer so that an absent
// field is told apart from an empty value.
type ValueRequest struct {
	Name  string  `cbor:"name"`
	Value *[]byte `cbor:"value"`
}

func (r ValueRequest) validate() error {
	if err := requireField("name", r.Name); err != nil {
		return err
	}
	if r.Value == nil {
		return fmt.Errorf("%w: missing required field: value", ErrBadRequest)
	}
	return nil
}

type ValuesRequest struct {
	Name   string    `cbor:"name"`
	Values *[][]byte `cbor:"values"`
}

func (r ValuesRequest) validate() error {
	if err := requireField("name", r.Name); err != nil {
		return err
	}
	if r.Values == nil {
		return fmt.Errorf("%w: missing required field: values", ErrBadRequest)
	}
	return nil
}

type MergeRequest struct {
	Target string `cbor:"target"`
	Source string `cbor:"source"`
}

type NameRequest struct {
	Name string `cbor:"name"`
}

type RestoreRequest struct {
	Name    string `cbor:"name"`
	Data    []byte `cbor:"data"`
	Replace bool   `cbor:"replace,omitempty"`
}

// DumpResponse holds a zstd-compressed serialized filter.
type DumpResponse struct {
	Data []byte `cbor:"data"`
}

type StatusResponse struct {
	UptimeSeconds float64 `cbor:"uptime_seconds"`
	Filters       int     `cbor:"filters"`
}

// Handlers binds the socket actions to a registry.
type Handlers struct {
	registry *gloom.Registry
	defaults gloom.Params
	started  time.Time
}

// NewHandlers returns handlers serving registry. defaults fill in the
// parameters an init request omits.
func NewHandlers(registry *gloom.Registry, defaults gloom.Params) *Handlers {
	return &Handlers{
		registry: registry,
		defaults: defaults,
		started:  time.Now(),
	}
}

// Register installs every action on server.
func (h *Handlers) Register(server *SocketServer) {
	server.Handle(ActionInit, h.create)
	server.Handle(ActionAdd, h.add)
	server.Handle(ActionAddMany, h.addMany)
	server.Handle(ActionExists, h.exists)
	server.Handle(ActionExistsMany, h.existsMany)
	server.Handle(ActionMerge, h.merge)
	server.Handle(ActionDelete, h.delete)
	server.Handle(ActionInfo, h.info)
	server.Handle(ActionList, h.list)
	server.Handle(ActionDump, h.dump)
	server.Handle(ActionRestore, h.restore)
	server.Handle(ActionStatus, h.status)
}

func decode[T any](raw []byte) (T, error) {
	var request T
	if err := codec.Unmarshal(raw, &request); err != nil {
		return request, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return request, nil
}

func requireField(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: missing required field: %s", ErrBadRequest, field)
	}
	return nil
}

// params resolves the filter parameters of an init request. Positional
// semantics: each parameter may only be given with the ones before it.
func (h *Handlers) params(request InitRequest) (gloom.Params, error) {
	p := h.defaults
	if request.ErrorRate != nil && request.Capacity == nil {
		return p, fmt.Errorf("%w: error_rate given without capacity", ErrBadRequest)
	}
	if request.Seed != nil && request.ErrorRate == nil {
		return p, fmt.Errorf("%w: seed given without error_rate", ErrBadRequest)
	}
	if request.Capacity != nil {
		p.Capacity = *request.Capacity
	}
	if request.ErrorRate != nil {
		p.ErrorRate = *request.ErrorRate
	}
	if request.Seed != nil {
		p.Seed = *request.Seed
	}
	return p, nil
}

func (h *Handlers) create(_ context.Context, raw []byte) (any, error) {
	request, err := decode[InitRequest](raw)
	if err != nil {
		return nil, err
	}
	if err := requireField("name", request.Name); err != nil {
		return nil, err
	}
	p, err := h.params(request)
	if err != nil {
		return nil, err
	}
	info, err := h.registry.Create(request.Name, p)
	if err != nil {
		return nil, err
	}
	metrics.SetFilters(h.registry.Len())
	return info, nil
}

func (h *Handlers) add(_ context.Context, raw []byte) (any, error) {
	request, err := decode[ValueRequest](raw)
	if err != nil {
		return nil, err
	}
	if err := request.validate(); err != nil {
		return nil, err
	}
	if err := h.registry.Add(request.Name, *request.Value); err != nil {
		return nil, err
	}
	metrics.AddValues(1)
	return nil, nil
}

func (h *Handlers) addMany(_ context.Context, raw []byte) (any, error) {
	request, err := decode[ValuesRequest](raw)
	if err != nil {
		return nil, err
	}
	if err := request.validate(); err != nil {
		return nil, err
	}
	if err := h.registry.AddMany(request.Name, *request.Values); err != nil {
		return nil, err
	}
	metrics.AddValues(len(*request.Values))
	return nil, nil
}

func (h *Handlers) exists(_ context.Context, raw []byte) (any, error) {
	request, err := decode[ValueRequest](raw)
	if err != nil {
		return nil, err
	}
	if err := request.validate(); err != nil {
		return nil, err
	}
	present, err := h.registry.Test(request.Name, *request.Value)
	if err != nil {
		return nil, err
	}
	metrics.ObserveTests([]bool{present})
	return flag(present), nil
}

func (h *Handlers) existsMany(_ context.Context, raw []byte) (any, error) {
	request, err := decode[ValuesRequest](raw)
	if err != nil {
		return nil, err
	}
	if err := request.validate(); err != nil {
		return nil, err
	}
	present, err := h.registry.TestMany(request.Name, *request.Values)
	if err != nil {
		return nil, err
	}
	metrics.ObserveTests(present)
	flags := make([]int, len(present))
	for i, p := range present {
		flags[i] = flag(p)
	}
	return flags, nil
}

// flag renders membership as the integer 1 or 0.
func flag(present bool) int {
	if present {
		return 1
	}
	return 0
}

func (h *Handlers) merge(_ context.Context, raw []byte) (any, error) {
	request, err := decode[MergeRequest](raw)
	if err != nil {
		return nil, err
	}
	if err := requireField("target", request.Target); err != nil {
		return nil, err
	}
	if err := requireField("source", request.Source); err != nil {
		return nil, err
	}
	return nil, h.registry.Merge(request.Target, request.Source)
}

func (h *Handlers) delete(_ context.Context, raw []byte) (any, error) {
	request, err := decode[NameRequest](raw)
	if err != nil {
		return nil, err
	}
	if err := requireField("name", request.Name); err != nil {
		return nil, err
	}
	if err := h.registry.Delete(request.Name); err != nil {
		return nil, err
	}
	metrics.SetFilters(h.registry.Len())
	return nil, nil
}

func (h *Handlers) info(_ context.Context, raw []byte) (any, error) {
	request, err := decode[NameRequest](raw)
	if err != nil {
		return nil, err
	}
	if err := requireField("name", request.Name); err != nil {
		return nil, err
	}
	return h.registry.Info(request.Name)
}

func (h *Handlers) list(context.Context, []byte) (any, error) {
	return h.registry.Names(), nil
}

func (h *Handlers) dump(_ context.Context, raw []byte) (any, error) {
	request, err := decode[NameRequest](raw)
	if err != nil {
		return nil, err
	}
	if err := requireField("name", request.Name); err != nil {
		return nil, err
	}
	data, err := h.registry.Dump(request.Name)
	if err != nil {
		return nil, err
	}
	return DumpResponse{Data: compressDump(data)}, nil
}

func (h *Handlers) restore(_ context.Context, raw []byte) (any, error) {
	request, err := decode[RestoreRequest](raw)
	if err != nil {
		return nil, err
	}
	if err := requireField("name", request.Name); err != nil {
		return nil, err
	}
	data, err := decompressDump(request.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gloom.ErrInvalidData, err)
	}
	info, err := h.registry.Restore(request.Name, data, request.Replace)
	if err != nil {
		return nil, err
	}
	metrics.SetFilters(h.registry.Len())
	return info, nil
}

func (h *Handlers) status(context.Context, []byte) (any, error) {
	return StatusResponse{
		UptimeSeconds: time.Since(h.started).Seconds(),
		Filters:       h.registry.Len(),
	}, nil
}
