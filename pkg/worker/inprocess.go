package worker

import (
	"context"

	"github.com/bft-labs/mwdispatch/pkg/cluster"
	"github.com/bft-labs/mwdispatch/pkg/transport/memconn"
)

// NewInProcess returns the master's connection to a proxy running in the
// master's own process. The worker's announcement is already waiting on
// the connection, so the master reads it as it would from a remote worker.
func NewInProcess(proxy Proxy, host string) (*memconn.Conn, error) {
	conn := memconn.New(func(ctx context.Context, in []byte) ([]byte, error) {
		out, cont, err := proxy.HandleData(ctx, in)
		if err != nil || !cont {
			return nil, err
		}
		return out, nil
	}, memconn.WithName(host))

	buf, err := cluster.MarshalWorkerInfo(cluster.WorkerInfo{HostName: host, WorkTypes: proxy.WorkTypes()})
	if err != nil {
		return nil, err
	}
	if err := conn.Deliver(buf); err != nil {
		return nil, err
	}
	return conn, nil
}
