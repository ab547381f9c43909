// Package foxglove exposes the live ingestion stream over the Foxglove
// WebSocket protocol: accepted samples, classified rejections, pipeline
// counters, and a pose transform for the 3D panel.
package foxglove

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ahrsmon/pkg/engine"
	"ahrsmon/pkg/pipeline"
	"ahrsmon/pkg/protocol"
)

const statsPublishInterval = time.Second

// AttitudeSource supplies the current attitude estimate for the transform
// channel. Optional.
type AttitudeSource interface {
	Quaternion() (w, x, y, z float64)
}

type Server struct {
	cfg      Config
	hub      *engine.Hub
	statsFn  func() pipeline.Snapshot
	attitude AttitudeSource

	clients map[*client]struct{}
	mu      sync.RWMutex
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	subs map[uint32]uint64
	mu   sync.RWMutex
	once sync.Once
}

type sampleMsg struct {
	Source    string  `json:"source"`
	TS        string  `json:"ts"`
	Type      string  `json:"type"`
	Sequence  uint32  `json:"seq"`
	Timestamp uint64  `json:"hw_ts"`
	Dt        float64 `json:"dt"`
	Gap       bool    `json:"gap,omitempty"`
	Data      any     `json:"data"`
}

type rejectionMsg struct {
	Source string `json:"source"`
	TS     string `json:"ts"`
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
	RawHex string `json:"raw_hex"`
}

type Option func(*Server)

// WithStats publishes pipeline counters on the stats channel.
func WithStats(fn func() pipeline.Snapshot) Option {
	return func(s *Server) {
		s.statsFn = fn
	}
}

// WithAttitude publishes pose transforms derived from the estimator.
func WithAttitude(src AttitudeSource) Option {
	return func(s *Server) {
		s.attitude = src
	}
}

func NewServer(cfg Config, hub *engine.Hub, opts ...Option) *Server {
	defaults := DefaultConfig()
	if cfg.WSAddr == "" {
		cfg.WSAddr = defaults.WSAddr
	}
	if cfg.Name == "" {
		cfg.Name = defaults.Name
	}
	if cfg.SampleTopic == "" {
		cfg.SampleTopic = defaults.SampleTopic
	}
	if cfg.SampleChannelID == 0 {
		cfg.SampleChannelID = defaults.SampleChannelID
	}
	if cfg.RejectionTopic == "" {
		cfg.RejectionTopic = defaults.RejectionTopic
	}
	if cfg.RejectionChannelID == 0 {
		cfg.RejectionChannelID = defaults.RejectionChannelID
	}
	if cfg.StatsTopic == "" {
		cfg.StatsTopic = defaults.StatsTopic
	}
	if cfg.StatsChannelID == 0 {
		cfg.StatsChannelID = defaults.StatsChannelID
	}
	if cfg.TransformTopic == "" {
		cfg.TransformTopic = defaults.TransformTopic
	}
	if cfg.TransformChannelID == 0 {
		cfg.TransformChannelID = defaults.TransformChannelID
	}
	if cfg.ParentFrameID == "" {
		cfg.ParentFrameID = defaults.ParentFrameID
	}
	if cfg.FrameID == "" {
		cfg.FrameID = defaults.FrameID
	}
	if cfg.SendBuf <= 0 {
		cfg.SendBuf = defaults.SendBuf
	}

	s := &Server{
		cfg:     cfg,
		hub:     hub,
		clients: make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)

	httpServer := &http.Server{
		Addr:    s.cfg.WSAddr,
		Handler: mux,
	}

	sub := s.hub.Subscribe()
	go s.broadcastLoop(ctx, sub)
	if s.statsFn != nil {
		go s.statsLoop(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		Subprotocols: []string{"foxglove.websocket.v1"},
		CheckOrigin: func(*http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := newClient(conn, s.cfg.SendBuf)
	s.addClient(c)

	if err := conn.WriteJSON(s.serverInfo()); err != nil {
		c.close()
		s.removeClient(c)
		return
	}
	if err := conn.WriteJSON(s.advertise()); err != nil {
		c.close()
		s.removeClient(c)
		return
	}

	go c.writeLoop()
	c.readLoop(s.supportedChannels())

	c.close()
	s.removeClient(c)
}

func (s *Server) supportedChannels() map[uint64]struct{} {
	return map[uint64]struct{}{
		s.cfg.SampleChannelID:    {},
		s.cfg.RejectionChannelID: {},
		s.cfg.StatsChannelID:     {},
		s.cfg.TransformChannelID: {},
	}
}

func (s *Server) serverInfo() ServerInfoMsg {
	return ServerInfoMsg{
		Op:           OpServerInfo,
		Name:         s.cfg.Name,
		Capabilities: []string{},
		SessionID:    uuid.NewString(),
	}
}

func (s *Server) advertise() AdvertiseMsg {
	return AdvertiseMsg{Op: OpAdvertise, Channels: []Channel{
		{
			ID:             s.cfg.SampleChannelID,
			Topic:          s.cfg.SampleTopic,
			Encoding:       "json",
			SchemaName:     "ahrsmon.Sample",
			SchemaEncoding: "jsonschema",
			Schema:         SampleSchema,
		},
		{
			ID:             s.cfg.RejectionChannelID,
			Topic:          s.cfg.RejectionTopic,
			Encoding:       "json",
			SchemaName:     "ahrsmon.Rejection",
			SchemaEncoding: "jsonschema",
			Schema:         RejectionSchema,
		},
		{
			ID:             s.cfg.StatsChannelID,
			Topic:          s.cfg.StatsTopic,
			Encoding:       "json",
			SchemaName:     "ahrsmon.Stats",
			SchemaEncoding: "jsonschema",
			Schema:         StatsSchema,
		},
		{
			ID:             s.cfg.TransformChannelID,
			Topic:          s.cfg.TransformTopic,
			Encoding:       "json",
			SchemaName:     "foxglove.FrameTransforms",
			SchemaEncoding: "jsonschema",
			Schema:         "",
		},
	}}
}

func (s *Server) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(statsPublishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ts := <-ticker.C:
			s.publishJSONToChannel(s.cfg.StatsChannelID, ts, s.statsFn())
		}
	}
}

func (s *Server) broadcastLoop(ctx context.Context, sub <-chan engine.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			s.broadcastEvent(ev)
		}
	}
}

func (s *Server) broadcastEvent(ev engine.Event) {
	switch {
	case ev.Sample != nil:
		s.broadcastSample(ev.Sample)
	case ev.Rejection != nil:
		s.broadcastRejection(ev.Rejection)
	}
}

func (s *Server) broadcastSample(sample *engine.Sample) {
	ts := sample.Received
	if ts.IsZero() {
		ts = time.Now()
	}

	s.publishJSONToChannel(s.cfg.SampleChannelID, ts, sampleMsg{
		Source:    sample.Source,
		TS:        ts.UTC().Format(time.RFC3339Nano),
		Type:      sample.Frame.Header.Type.String(),
		Sequence:  sample.Frame.Header.Sequence,
		Timestamp: sample.Frame.Header.Timestamp,
		Dt:        sample.Dt,
		Gap:       sample.Gap,
		Data:      sample.Frame.Payload,
	})

	if tf, ok := s.transformForSample(sample, ts); ok {
		s.publishJSONToChannel(s.cfg.TransformChannelID, ts, tf)
	}
}

func (s *Server) broadcastRejection(rej *engine.Rejection) {
	ts := rej.Received
	if ts.IsZero() {
		ts = time.Now()
	}

	msg := rejectionMsg{
		Source: rej.Source,
		TS:     ts.UTC().Format(time.RFC3339Nano),
		Reason: string(rej.Reason),
		RawHex: hex.EncodeToString(rej.Raw),
	}
	if rej.Err != nil {
		msg.Error = rej.Err.Error()
	}
	s.publishJSONToChannel(s.cfg.RejectionChannelID, ts, msg)
}

// transformForSample prefers the fused estimate; a sensor-side quaternion
// payload serves when no estimator is attached.
func (s *Server) transformForSample(sample *engine.Sample, ts time.Time) (FrameTransformsMessage, bool) {
	var rot Quaternion3
	switch {
	case s.attitude != nil:
		w, x, y, z := s.attitude.Quaternion()
		rot = Quaternion3{W: w, X: x, Y: y, Z: z}
	default:
		quat, ok := sample.Frame.Payload.(protocol.ImuQuatPayload)
		if !ok {
			return FrameTransformsMessage{}, false
		}
		rot = Quaternion3{
			W: float64(quat.W), X: float64(quat.X),
			Y: float64(quat.Y), Z: float64(quat.Z),
		}
	}

	return FrameTransformsMessage{Transforms: []FrameTransformMessage{{
		Timestamp: FrameTime{
			Sec:  uint32(ts.Unix()),
			Nsec: uint32(ts.Nanosecond()),
		},
		ParentFrameID: s.cfg.ParentFrameID,
		ChildFrameID:  s.cfg.FrameID,
		Rotation:      rot,
	}}}, true
}

func (s *Server) publishJSONToChannel(channelID uint64, ts time.Time, message any) {
	payload, err := json.Marshal(message)
	if err != nil {
		return
	}

	logTime := uint64(ts.UnixNano())
	clients := s.snapshotClients()
	for _, c := range clients {
		subIDs := c.subIDsForChannel(channelID)
		for _, subID := range subIDs {
			frame := EncodeMessageData(subID, logTime, payload)
			c.trySend(frame)
		}
	}
}

func (s *Server) addClient(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (s *Server) snapshotClients() []*client {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()
	return clients
}

func newClient(conn *websocket.Conn, sendBuf int) *client {
	if sendBuf <= 0 {
		sendBuf = DefaultConfig().SendBuf
	}
	return &client{
		conn: conn,
		send: make(chan []byte, sendBuf),
		subs: make(map[uint32]uint64),
	}
}

func (c *client) readLoop(supportedChannels map[uint64]struct{}) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var header struct {
			Op string `json:"op"`
		}
		if err := json.Unmarshal(data, &header); err != nil {
			continue
		}

		switch header.Op {
		case OpSubscribe:
			var msg SubscribeMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			for _, sub := range msg.Subscriptions {
				if _, ok := supportedChannels[sub.ChannelID]; ok {
					c.addSub(sub.ID, sub.ChannelID)
				}
			}
		case OpUnsubscribe:
			var msg UnsubscribeMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			for _, id := range msg.SubscriptionIDs {
				c.removeSub(id)
			}
		}
	}
}

func (c *client) writeLoop() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			c.close()
			return
		}
	}
}

func (c *client) trySend(msg []byte) {
	defer func() {
		_ = recover()
	}()
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) addSub(id uint32, channelID uint64) {
	c.mu.Lock()
	c.subs[id] = channelID
	c.mu.Unlock()
}

func (c *client) removeSub(id uint32) {
	c.mu.Lock()
	delete(c.subs, id)
	c.mu.Unlock()
}

func (c *client) subIDsForChannel(channelID uint64) []uint32 {
	c.mu.RLock()
	ids := make([]uint32, 0, len(c.subs))
	for id, ch := range c.subs {
		if ch == channelID {
			ids = append(ids, id)
		}
	}
	c.mu.RUnlock()
	return ids
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}
