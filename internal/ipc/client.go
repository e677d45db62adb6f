package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) call(method string, req, resp any) error {
	return c.client.Call(ServiceName+"."+method, req, resp)
}

// Start requests the daemon to start the workflow.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.call("Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop the workflow.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.call("Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PhaseStart starts a sync for phase. A zero batchSize uses the configured size.
func (c *Client) PhaseStart(phase string, batchSize int) (*PhaseResponse, error) {
	return c.phase("PhaseStart", PhaseRequest{Phase: phase, BatchSize: batchSize})
}

// PhaseReset returns phase to pending.
func (c *Client) PhaseReset(phase string) (*PhaseResponse, error) {
	return c.phase("PhaseReset", PhaseRequest{Phase: phase})
}

// PhaseCancel cancels the remote job for phase.
func (c *Client) PhaseCancel(phase string) (*PhaseResponse, error) {
	return c.phase("PhaseCancel", PhaseRequest{Phase: phase})
}

// PhasePause pauses polling for phase.
func (c *Client) PhasePause(phase string) (*PhaseResponse, error) {
	return c.phase("PhasePause", PhaseRequest{Phase: phase})
}

// PhaseResume resumes a paused phase.
func (c *Client) PhaseResume(phase string) (*PhaseResponse, error) {
	return c.phase("PhaseResume", PhaseRequest{Phase: phase})
}

// PhaseNudge asks the server to process the next batch now.
func (c *Client) PhaseNudge(phase string) (*PhaseResponse, error) {
	return c.phase("PhaseNudge", PhaseRequest{Phase: phase})
}

func (c *Client) phase(method string, req PhaseRequest) (*PhaseResponse, error) {
	var resp PhaseResponse
	if err := c.call(method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History lists journal entries matching req.
func (c *Client) History(req HistoryRequest) (*HistoryResponse, error) {
	var resp HistoryResponse
	if err := c.call("History", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail fetches daemon log lines.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.call("LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification sends a test ntfy message through the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.call("TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
