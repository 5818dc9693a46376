// Package rpc exposes the optimization engine over gRPC. Payloads travel as
// google.protobuf.Struct holding the JSON form of the engine types, so the
// service needs no generated code.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/spectrum-optimizer/core"
	"github.com/signalsfoundry/spectrum-optimizer/internal/engine"
	"github.com/signalsfoundry/spectrum-optimizer/internal/history"
	"github.com/signalsfoundry/spectrum-optimizer/internal/logging"
	"github.com/signalsfoundry/spectrum-optimizer/model"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "spectrum.v1.SpectrumEngine"

// Method names.
const (
	MethodAnalyzeSpectrum          = "AnalyzeSpectrum"
	MethodAssignFrequencies        = "AssignFrequencies"
	MethodOptimizeCarriers         = "OptimizeCarriers"
	MethodOptimizeGlobalAllocation = "OptimizeGlobalAllocation"
	MethodOptimizeAntennas         = "OptimizeAntennas"
	MethodRun                      = "Run"
	MethodListHistory              = "ListHistory"
)

// FullMethod returns "/spectrum.v1.SpectrumEngine/<method>".
func FullMethod(method string) string { return "/" + ServiceName + "/" + method }

type AnalyzeSpectrumRequest struct {
	Measurements []model.Measurement `json:"measurements"`
}

type AnalyzeSpectrumResponse struct {
	Utilization map[string]model.BandUtilization `json:"spectrum_utilization"`
}

// CellsRequest carries the topology for frequency assignment and antenna
// tuning.
type CellsRequest struct {
	Cells  []model.CellSite    `json:"cells"`
	Demand model.TrafficDemand `json:"traffic_demand,omitempty"`
}

type UsersRequest struct {
	Users    []model.UserRequirement `json:"users"`
	Spectrum model.AvailableSpectrum `json:"available_spectrum,omitempty"`
}

type ListHistoryRequest struct {
	// Limit caps the number of entries; zero returns all of them.
	Limit int `json:"limit,omitempty"`
}

type ListHistoryResponse struct {
	Entries []history.Entry `json:"entries"`
}

// SpectrumEngineServer is the server API for the SpectrumEngine service.
type SpectrumEngineServer interface {
	AnalyzeSpectrum(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AssignFrequencies(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OptimizeCarriers(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OptimizeGlobalAllocation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OptimizeAntennas(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Run(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListHistory(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type serverMethod func(SpectrumEngineServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call serverMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(SpectrumEngineServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(SpectrumEngineServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the SpectrumEngine service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SpectrumEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler(MethodAnalyzeSpectrum, SpectrumEngineServer.AnalyzeSpectrum),
		unaryHandler(MethodAssignFrequencies, SpectrumEngineServer.AssignFrequencies),
		unaryHandler(MethodOptimizeCarriers, SpectrumEngineServer.OptimizeCarriers),
		unaryHandler(MethodOptimizeGlobalAllocation, SpectrumEngineServer.OptimizeGlobalAllocation),
		unaryHandler(MethodOptimizeAntennas, SpectrumEngineServer.OptimizeAntennas),
		unaryHandler(MethodRun, SpectrumEngineServer.Run),
		unaryHandler(MethodListHistory, SpectrumEngineServer.ListHistory),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "spectrum/v1/engine",
}

// RegisterSpectrumEngineServer registers srv on s.
func RegisterSpectrumEngineServer(s grpc.ServiceRegistrar, srv SpectrumEngineServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// HistoryLister reads persisted history, newest first.
type HistoryLister interface {
	List(ctx context.Context, limit int) ([]history.Entry, error)
}

// Service implements SpectrumEngineServer on top of an engine.
type Service struct {
	engine  *engine.Engine
	history HistoryLister
	log     logging.Logger
}

var _ SpectrumEngineServer = (*Service)(nil)

// NewService returns a service backed by eng. A nil lister serves history
// from the engine's in-memory log.
func NewService(eng *engine.Engine, lister HistoryLister, log logging.Logger) *Service {
	if log == nil {
		log = logging.Noop()
	}
	return &Service{engine: eng, history: lister, log: log}
}

// handle decodes the request into req, runs fn and encodes its result,
// mapping every failure to a status error.
func handle[Req any](ctx context.Context, s *Service, in *structpb.Struct, fn func(context.Context, Req) (any, error)) (*structpb.Struct, error) {
	log := logging.FromContext(ctx, s.log)
	var req Req
	if err := decodeStruct(in, &req); err != nil {
		log.Debug(ctx, "Rejected request payload", logging.Err(err))
		return nil, ToStatusError(err)
	}
	resp, err := fn(ctx, req)
	if err != nil {
		log.Warn(ctx, "Request failed", logging.Err(err))
		return nil, ToStatusError(err)
	}
	out, err := encodeStruct(resp)
	if err != nil {
		log.Error(ctx, "Response encoding failed", logging.Err(err))
		return nil, ToStatusError(err)
	}
	return out, nil
}

func (s *Service) AnalyzeSpectrum(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, s, in, func(ctx context.Context, req AnalyzeSpectrumRequest) (any, error) {
		util, err := s.engine.AnalyzeSpectrum(ctx, req.Measurements)
		return AnalyzeSpectrumResponse{Utilization: util}, err
	})
}

func (s *Service) AssignFrequencies(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, s, in, func(ctx context.Context, req CellsRequest) (any, error) {
		return s.engine.AssignFrequencies(ctx, req.Cells, req.Demand)
	})
}

func (s *Service) OptimizeCarriers(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, s, in, func(ctx context.Context, req UsersRequest) (any, error) {
		return s.engine.OptimizeCarriers(ctx, req.Users, req.Spectrum)
	})
}

func (s *Service) OptimizeGlobalAllocation(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, s, in, func(ctx context.Context, req UsersRequest) (any, error) {
		return s.engine.OptimizeGlobalAllocation(ctx, req.Users)
	})
}

func (s *Service) OptimizeAntennas(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, s, in, func(ctx context.Context, req CellsRequest) (any, error) {
		return s.engine.OptimizeAntennas(ctx, req.Cells, req.Demand)
	})
}

func (s *Service) Run(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, s, in, func(ctx context.Context, req engine.Snapshot) (any, error) {
		return s.engine.Run(ctx, req)
	})
}

func (s *Service) ListHistory(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, s, in, func(ctx context.Context, req ListHistoryRequest) (any, error) {
		if s.history != nil {
			entries, err := s.history.List(ctx, req.Limit)
			return ListHistoryResponse{Entries: entries}, err
		}
		entries := s.engine.History()
		// Newest first, matching the persisted store.
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
		if req.Limit > 0 && len(entries) > req.Limit {
			entries = entries[:req.Limit]
		}
		return ListHistoryResponse{Entries: entries}, nil
	})
}

// WithRunID asks the server to record the calls made with ctx under runID
// instead of a fresh run id per call.
func WithRunID(ctx context.Context, runID string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, runIDMetadataKey, runID)
}

// WithRequestID sets the x-request-id sent with calls made with ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, requestIDMetadataKey, requestID)
}

// Client is a thin typed client for the SpectrumEngine service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

// Call invokes method with req encoded as a Struct and decodes the reply
// into resp.
func (c *Client) Call(ctx context.Context, method string, req, resp any, opts ...grpc.CallOption) error {
	in, err := encodeStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return err
	}
	return decodeStruct(out, resp)
}

func (c *Client) AnalyzeSpectrum(ctx context.Context, measurements []model.Measurement) (map[string]model.BandUtilization, error) {
	var resp AnalyzeSpectrumResponse
	err := c.Call(ctx, MethodAnalyzeSpectrum, AnalyzeSpectrumRequest{Measurements: measurements}, &resp)
	return resp.Utilization, err
}

func (c *Client) AssignFrequencies(ctx context.Context, cells []model.CellSite, demand model.TrafficDemand) (core.Plan, error) {
	var resp core.Plan
	err := c.Call(ctx, MethodAssignFrequencies, CellsRequest{Cells: cells, Demand: demand}, &resp)
	return resp, err
}

func (c *Client) OptimizeCarriers(ctx context.Context, users []model.UserRequirement, spectrum model.AvailableSpectrum) (core.AggregationResult, error) {
	var resp core.AggregationResult
	err := c.Call(ctx, MethodOptimizeCarriers, UsersRequest{Users: users, Spectrum: spectrum}, &resp)
	return resp, err
}

func (c *Client) OptimizeGlobalAllocation(ctx context.Context, users []model.UserRequirement) (core.GlobalAllocationResult, error) {
	var resp core.GlobalAllocationResult
	err := c.Call(ctx, MethodOptimizeGlobalAllocation, UsersRequest{Users: users}, &resp)
	return resp, err
}

func (c *Client) OptimizeAntennas(ctx context.Context, cells []model.CellSite, demand model.TrafficDemand) (core.AntennaOptimizationResult, error) {
	var resp core.AntennaOptimizationResult
	err := c.Call(ctx, MethodOptimizeAntennas, CellsRequest{Cells: cells, Demand: demand}, &resp)
	return resp, err
}

func (c *Client) Run(ctx context.Context, s engine.Snapshot) (engine.Report, error) {
	var resp engine.Report
	err := c.Call(ctx, MethodRun, s, &resp)
	return resp, err
}

func (c *Client) ListHistory(ctx context.Context, limit int) ([]history.Entry, error) {
	var resp ListHistoryResponse
	err := c.Call(ctx, MethodListHistory, ListHistoryRequest{Limit: limit}, &resp)
	return resp.Entries, err
}
