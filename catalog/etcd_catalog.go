package catalog

import (
	"context"
	"encoding/json"
	"strings"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// EtcdPrefix is the root under which every service is registered.
const EtcdPrefix = "/mangrove/"

// EtcdCatalog implements Catalog on top of etcd v3, one key per service region:
//
//	Key:   /mangrove/{ServiceName}/{Region}
//	Value: JSON-encoded Endpoint
//
// Registration uses TTL-based leases: if the process announcing a region dies,
// the lease expires and the region disappears from the catalog.
type EtcdCatalog struct {
	client *clientv3.Client // etcd client connection (thread-safe, shared across goroutines)
	dialer Dialer
	logger *zap.Logger
}

// NewEtcdCatalog connects to the given etcd endpoints. A nil logger disables logging.
func NewEtcdCatalog(endpoints []string, dialer Dialer, logger *zap.Logger) (*EtcdCatalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
		Logger:    logger.Named("etcd"),
	})
	if err != nil {
		return nil, err
	}
	return &EtcdCatalog{client: c, dialer: dialer, logger: logger}, nil
}

// Close releases the etcd client.
func (r *EtcdCatalog) Close() error {
	return r.client.Close()
}

func servicePrefix(service string) string {
	return EtcdPrefix + service + "/"
}

// Register announces a region endpoint with a TTL lease kept alive in the background.
func (r *EtcdCatalog) Register(ctx context.Context, service string, ep Endpoint, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(ep)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, servicePrefix(service)+ep.Region, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	// KeepAlive must outlive the registration call.
	ch, err := r.client.KeepAlive(context.WithoutCancel(ctx), lease.ID)
	if err != nil {
		return err
	}

	// Drain responses so the keep-alive channel never fills up.
	go func() {
		for range ch {
		}
	}()

	r.logger.Debug("registered region endpoint",
		zap.String("service", service),
		zap.String("region", ep.Region),
		zap.String("addr", ep.Addr),
		zap.Int64("ttl", ttl))
	return nil
}

// Deregister removes a region endpoint.
func (r *EtcdCatalog) Deregister(ctx context.Context, service, region string) error {
	_, err := r.client.Delete(ctx, servicePrefix(service)+region)
	return err
}

// Discover returns every endpoint currently registered for a service, in canonical order.
func (r *EtcdCatalog) Discover(ctx context.Context, service string) ([]Endpoint, error) {
	resp, err := r.client.Get(ctx, servicePrefix(service), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	values := make([][]byte, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		values = append(values, kv.Value)
	}
	return decodeEndpoints(values, r.logger), nil
}

// Watch emits the full endpoint list of a service each time one of its keys changes.
// The channel is closed when ctx ends.
func (r *EtcdCatalog) Watch(ctx context.Context, service string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, servicePrefix(service), clientv3.WithPrefix())
		for range watchChan {
			// Re-fetch the whole list instead of applying individual events.
			eps, err := r.Discover(ctx, service)
			if err != nil {
				r.logger.Warn("refresh watched service", zap.String("service", service), zap.Error(err))
				continue
			}
			select {
			case ch <- eps:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Lookup implements Catalog. A service is known as long as at least one of its
// regions is registered.
func (r *EtcdCatalog) Lookup(ctx context.Context, name string) (Service, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, "/") {
		return nil, unknownService(name)
	}

	resp, err := r.client.Get(ctx, servicePrefix(name), clientv3.WithPrefix(), clientv3.WithCountOnly())
	if err != nil {
		return nil, err
	}
	if resp.Count == 0 {
		return nil, unknownService(name)
	}

	return &endpointService{
		name:   name,
		dialer: r.dialer,
		refresh: func(ctx context.Context) ([]Endpoint, error) {
			return r.Discover(ctx, name)
		},
	}, nil
}

// decodeEndpoints parses stored values, skipping malformed entries, and sorts the result.
func decodeEndpoints(values [][]byte, logger *zap.Logger) []Endpoint {
	eps := make([]Endpoint, 0, len(values))
	for _, v := range values {
		var ep Endpoint
		if err := json.Unmarshal(v, &ep); err != nil || ep.Region == "" {
			logger.Warn("skipping malformed endpoint", zap.ByteString("value", v), zap.Error(err))
			continue
		}
		eps = append(eps, ep)
	}
	sortEndpoints(eps)
	return eps
}
