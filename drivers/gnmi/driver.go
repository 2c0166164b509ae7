// Package gnmi exposes configuration facades over the gNMI gRPC service, so devices that only
// have a CLI can be read and configured with gNMI tooling.
//
// Paths served by Get:
//
//	/running-config[flags=...]   running configuration as text
//	/startup-config[flags=...]   startup configuration as text
//	/device-info[/<key>]         device identity map, or one of its values
//	/capabilities                capability descriptor as JSON
//	/cli[command=...]            output of one command, no mode change
//
// Set accepts updates on /cli (or any path with origin "cli") carrying configuration lines.
package gnmi

import (
	"context"
	"crypto/subtle"
	"net"
	"strings"
	"time"

	gnmipb "github.com/openconfig/gnmi/proto/gnmi"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/nanoncore/nano-cliconf/internal/logger"
	"github.com/nanoncore/nano-cliconf/types"
)

// GNMIVersion is reported by Capabilities
const GNMIVersion = "0.10.0"

// TargetMetadataKey selects the device for RPCs that carry no prefix, such as Capabilities
const TargetMetadataKey = "target"

// Path element names
const (
	ElemRunningConfig = "running-config"
	ElemStartupConfig = "startup-config"
	ElemDeviceInfo    = "device-info"
	ElemCapabilities  = "capabilities"
	ElemCLI           = "cli"
)

// Device is the part of the configuration facade the gateway needs
type Device interface {
	GetConfig(ctx context.Context, source string, flags []string, format string) (string, error)
	GetDeviceInfo(ctx context.Context) (map[string]string, error)
	EditConfig(ctx context.Context, commands []types.CommandRequest) ([]*types.CommandResult, error)
	Get(ctx context.Context, req types.CommandRequest) (*types.CommandResult, error)
	GetCapabilities() types.Capabilities
}

// Resolver maps a gNMI target name to a device
type Resolver interface {
	Resolve(ctx context.Context, target string) (Device, error)
}

// ResolverFunc adapts a function to Resolver
type ResolverFunc func(ctx context.Context, target string) (Device, error)

// Resolve calls f
func (f ResolverFunc) Resolve(ctx context.Context, target string) (Device, error) {
	return f(ctx, target)
}

// StaticTargets resolves targets from a fixed map. An empty target is accepted when the map
// holds exactly one device.
type StaticTargets map[string]Device

// Resolve looks target up
func (m StaticTargets) Resolve(_ context.Context, target string) (Device, error) {
	if target == "" {
		if len(m) == 1 {
			for _, d := range m {
				return d, nil
			}
		}
		return nil, status.Error(codes.InvalidArgument, "target is required")
	}
	d, ok := m[target]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown target %q", target)
	}
	return d, nil
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the server log entry
func WithLogger(entry *logrus.Entry) Option {
	return func(s *Server) {
		s.log = entry
	}
}

// WithCredentials requires every RPC to carry matching username and password metadata
func WithCredentials(username, password string) Option {
	return func(s *Server) {
		s.username = username
		s.password = password
	}
}

// Server implements the gNMI service on top of configuration facades
type Server struct {
	gnmipb.UnimplementedGNMIServer

	resolver Resolver
	log      *logrus.Entry
	username string
	password string
}

// NewServer builds a gateway resolving targets with r
func NewServer(r Resolver, opts ...Option) *Server {
	s := &Server{resolver: r}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.WithField("component", "gnmi")
	}
	return s
}

// Register adds the service to g
func (s *Server) Register(g *grpc.Server) {
	gnmipb.RegisterGNMIServer(g, s)
}

// Serve runs a gRPC server on lis until ctx is done
func (s *Server) Serve(ctx context.Context, lis net.Listener, opts ...grpc.ServerOption) error {
	g := grpc.NewServer(opts...)
	s.Register(g)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		g.GracefulStop()
	}()

	s.log.WithField("address", lis.Addr().String()).Info("gNMI gateway listening")
	err := g.Serve(lis)
	if ctx.Err() != nil {
		<-stopped
		return nil
	}
	return err
}

// Capabilities reports the facade capabilities of the target named in the request metadata
func (s *Server) Capabilities(ctx context.Context, _ *gnmipb.CapabilityRequest) (*gnmipb.CapabilityResponse, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	dev, err := s.resolve(ctx, metadataTarget(ctx))
	if err != nil {
		return nil, err
	}

	caps := dev.GetCapabilities()
	return &gnmipb.CapabilityResponse{
		SupportedModels: []*gnmipb.ModelData{{
			Name:         caps.NetworkAPI,
			Organization: caps.NetworkOS,
			Version:      caps.DeviceInfo["network_os_version"],
		}},
		SupportedEncodings: []gnmipb.Encoding{
			gnmipb.Encoding_ASCII,
			gnmipb.Encoding_JSON,
			gnmipb.Encoding_JSON_IETF,
		},
		GNMIVersion: GNMIVersion,
	}, nil
}

// Get serves each requested path from the facade, one notification per path
func (s *Server) Get(ctx context.Context, req *gnmipb.GetRequest) (*gnmipb.GetResponse, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	dev, err := s.resolve(ctx, requestTarget(ctx, req.GetPrefix()))
	if err != nil {
		return nil, err
	}
	if len(req.GetPath()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "no paths requested")
	}

	resp := &gnmipb.GetResponse{}
	for _, p := range req.GetPath() {
		full := joinPath(req.GetPrefix(), p)
		value, err := s.read(ctx, dev, full)
		if err != nil {
			return nil, err
		}
		tv, err := encodeTypedValue(value, req.GetEncoding())
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		resp.Notification = append(resp.Notification, &gnmipb.Notification{
			Timestamp: time.Now().UnixNano(),
			Prefix:    req.GetPrefix(),
			Update:    []*gnmipb.Update{{Path: p, Val: tv}},
		})
	}
	return resp, nil
}

func (s *Server) read(ctx context.Context, dev Device, p *gnmipb.Path) (interface{}, error) {
	elems := p.GetElem()
	if len(elems) == 0 {
		return nil, status.Error(codes.InvalidArgument, "empty path")
	}
	log := s.log.WithField("path", PathToString(p))
	log.Debug("gNMI get")

	head := elems[0]
	switch head.GetName() {
	case ElemRunningConfig, ElemStartupConfig:
		source := strings.TrimSuffix(head.GetName(), "-config")
		text, err := dev.GetConfig(ctx, source, strings.Fields(head.GetKey()["flags"]), "")
		if err != nil {
			return nil, toStatus(err)
		}
		return text, nil

	case ElemDeviceInfo:
		info, err := dev.GetDeviceInfo(ctx)
		if err != nil {
			return nil, toStatus(err)
		}
		if len(elems) > 1 {
			v, ok := info[elems[1].GetName()]
			if !ok {
				return nil, status.Errorf(codes.NotFound, "device info has no %q", elems[1].GetName())
			}
			return v, nil
		}
		return info, nil

	case ElemCapabilities:
		return dev.GetCapabilities(), nil

	case ElemCLI:
		command := head.GetKey()["command"]
		if command == "" {
			return nil, status.Error(codes.InvalidArgument, "cli path needs a command key")
		}
		res, err := dev.Get(ctx, types.CommandRequest{Command: command})
		if err != nil {
			return nil, toStatus(err)
		}
		return res.Output, nil
	}
	return nil, status.Errorf(codes.NotFound, "path %s is not served", PathToString(p))
}

// Set applies update values on the CLI path as one configuration edit. Replace and delete
// have no line based equivalent.
func (s *Server) Set(ctx context.Context, req *gnmipb.SetRequest) (*gnmipb.SetResponse, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	if len(req.GetDelete()) > 0 {
		return nil, status.Error(codes.Unimplemented, "delete is not supported, send the negating commands as an update")
	}
	if len(req.GetReplace()) > 0 {
		return nil, status.Error(codes.Unimplemented, "replace is not supported, configuration is applied line by line")
	}
	if len(req.GetUpdate()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "no updates")
	}

	dev, err := s.resolve(ctx, requestTarget(ctx, req.GetPrefix()))
	if err != nil {
		return nil, err
	}

	var lines []string
	results := make([]*gnmipb.UpdateResult, 0, len(req.GetUpdate()))
	for _, u := range req.GetUpdate() {
		full := joinPath(req.GetPrefix(), u.GetPath())
		if !isCLIPath(full) {
			return nil, status.Errorf(codes.InvalidArgument, "path %s does not accept configuration, use /%s", PathToString(full), ElemCLI)
		}
		l, err := commandLines(u.GetVal())
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "update %s: %v", PathToString(full), err)
		}
		lines = append(lines, l...)
		results = append(results, &gnmipb.UpdateResult{Path: u.GetPath(), Op: gnmipb.UpdateResult_UPDATE})
	}

	s.log.WithField("commands", len(lines)).Info("gNMI set")
	if _, err := dev.EditConfig(ctx, types.Commands(lines...)); err != nil {
		return nil, toStatus(err)
	}
	return &gnmipb.SetResponse{
		Prefix:    req.GetPrefix(),
		Response:  results,
		Timestamp: time.Now().UnixNano(),
	}, nil
}

func isCLIPath(p *gnmipb.Path) bool {
	if p.GetOrigin() == ElemCLI {
		return true
	}
	elems := p.GetElem()
	return len(elems) == 1 && elems[0].GetName() == ElemCLI && len(elems[0].GetKey()) == 0
}

func (s *Server) resolve(ctx context.Context, target string) (Device, error) {
	dev, err := s.resolver.Resolve(ctx, target)
	if err != nil {
		if _, ok := status.FromError(err); ok {
			return nil, err
		}
		return nil, toStatus(err)
	}
	return dev, nil
}

func (s *Server) authorize(ctx context.Context) error {
	if s.username == "" && s.password == "" {
		return nil
	}
	md, _ := metadata.FromIncomingContext(ctx)
	userOK := subtle.ConstantTimeCompare([]byte(first(md, "username")), []byte(s.username))
	passOK := subtle.ConstantTimeCompare([]byte(first(md, "password")), []byte(s.password))
	if userOK&passOK != 1 {
		return status.Error(codes.Unauthenticated, "invalid credentials")
	}
	return nil
}

func requestTarget(ctx context.Context, prefix *gnmipb.Path) string {
	if t := prefix.GetTarget(); t != "" {
		return t
	}
	return metadataTarget(ctx)
}

func metadataTarget(ctx context.Context) string {
	md, _ := metadata.FromIncomingContext(ctx)
	return first(md, TargetMetadataKey)
}

func first(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

// toStatus maps engine errors onto gRPC codes. The device text of a rejected command is kept
// in the message.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var code codes.Code
	switch types.CodeOf(err) {
	case types.CodeInvalidParameter:
		code = codes.InvalidArgument
	case types.CodeResponseTimeout:
		code = codes.DeadlineExceeded
	case types.CodeDeviceError:
		code = codes.FailedPrecondition
	case types.CodePrivilegeEscalationFailed:
		code = codes.PermissionDenied
	case types.CodeTransportClosed:
		code = codes.Unavailable
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}
