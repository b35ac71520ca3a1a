package ipc

import (
	"github.com/godbus/dbus/v5"
)

// Client is the frontend side of the bus protocol, used by the CLI
// adapters and the operational subcommands.
type Client struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// Connect dials the session bus and binds the daemon object. It does not
// verify the daemon is alive; the first call does.
func Connect() (*Client, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}
	return &Client{
		conn: conn,
		obj:  conn.Object(BusName, dbus.ObjectPath(ObjectPath)),
	}, nil
}

// Close releases the bus connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// InsightReply is one insight tuple as served over the bus.
type InsightReply struct {
	ID          int64
	Emoji       string
	Text        string
	ContextHash string
}

// GetLatestInsight fetches the newest insight tuple.
func (c *Client) GetLatestInsight() (InsightReply, error) {
	var reply InsightReply
	err := c.obj.Call(InterfaceName+".GetLatestInsight", 0).
		Store(&reply.ID, &reply.Emoji, &reply.Text, &reply.ContextHash)
	return reply, err
}

// GetInsightByID fetches one insight tuple by id.
func (c *Client) GetInsightByID(id int64) (InsightReply, error) {
	var reply InsightReply
	err := c.obj.Call(InterfaceName+".GetInsightById", 0, id).
		Store(&reply.ID, &reply.Emoji, &reply.Text, &reply.ContextHash)
	return reply, err
}

// RegisterFrontend announces this client under the given id.
func (c *Client) RegisterFrontend(frontendID string, pid int) (bool, error) {
	var ok bool
	err := c.obj.Call(InterfaceName+".RegisterFrontend", 0, frontendID, int32(pid)).Store(&ok)
	return ok, err
}

// UnregisterFrontend removes this client's registration.
func (c *Client) UnregisterFrontend(frontendID string) (bool, error) {
	var ok bool
	err := c.obj.Call(InterfaceName+".UnregisterFrontend", 0, frontendID).Store(&ok)
	return ok, err
}

// Heartbeat refreshes this client's liveness window.
func (c *Client) Heartbeat(frontendID string) (bool, error) {
	var ok bool
	err := c.obj.Call(InterfaceName+".Heartbeat", 0, frontendID).Store(&ok)
	return ok, err
}

// ForceRefresh asks the daemon for one immediate analysis pass.
func (c *Client) ForceRefresh() (bool, error) {
	var ok bool
	err := c.obj.Call(InterfaceName+".ForceRefresh", 0).Store(&ok)
	return ok, err
}

// StatusReply is the daemon status tuple.
type StatusReply struct {
	Running         bool
	ActiveFrontends uint32
	InsightsCount   int64
}

// GetStatus fetches the daemon status tuple.
func (c *Client) GetStatus() (StatusReply, error) {
	var reply StatusReply
	err := c.obj.Call(InterfaceName+".GetStatus", 0).
		Store(&reply.Running, &reply.ActiveFrontends, &reply.InsightsCount)
	return reply, err
}

// Stop asks the daemon to shut down.
func (c *Client) Stop() (bool, error) {
	var ok bool
	err := c.obj.Call(InterfaceName+".Stop", 0).Store(&ok)
	return ok, err
}

// SubscribeInsightUpdated routes InsightUpdated signals into ch.
// Long-lived applets keep the connection open and heartbeat on a timer.
func (c *Client) SubscribeInsightUpdated(ch chan<- *dbus.Signal) error {
	if err := c.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(dbus.ObjectPath(ObjectPath)),
		dbus.WithMatchInterface(InterfaceName),
		dbus.WithMatchMember("InsightUpdated"),
	); err != nil {
		return err
	}
	c.conn.Signal(ch)
	return nil
}
