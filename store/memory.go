package store

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	uuid "github.com/satori/go.uuid"

	"github.com/gbt28181/sipgw/conf"
)

const timeoutChanCap = 64

type deviceEntry struct {
	branch string
	route  Route
	ts     int64
	subs   []SubDevice
}

type streamEntry struct {
	gbCode    string
	channelID string
	callerID  string
	fromTag   string
	toTag     string
	mediaIP   string
	mediaPort int
	ts        int64
	live      bool
}

// Memory is the in-process engine. Devices and streams live in maps guarded
// by one mutex each; counters are plain atomics.
type Memory struct {
	log zerolog.Logger

	// Random per process, reported to the load balancer.
	serviceID string

	streamTimeout int64
	deviceTimeout int64

	liveStreamID   atomic.Uint32
	replayStreamID atomic.Uint32
	globalSN       atomic.Uint32
	registerSeq    atomic.Uint32
	globalSeq      atomic.Uint32

	dmu     sync.RWMutex
	devices map[string]*deviceEntry

	smu        sync.RWMutex
	streams    map[uint32]*streamEntry
	streamsRev map[string][]uint32

	timeoutDevices chan string
	timeoutStreams chan StreamTimeout

	swmu sync.Mutex
	quit chan struct{}
	done chan struct{}
}

func NewMemory(cfg *conf.Config) *Memory {
	return &Memory{
		log:            log.Logger.With().Str("caller", "MemoryStore").Logger(),
		serviceID:      uuid.Must(uuid.NewV4()).String(),
		streamTimeout:  int64(cfg.StreamTimeoutSeconds),
		deviceTimeout:  int64(cfg.DeviceTimeoutSeconds),
		devices:        make(map[string]*deviceEntry),
		streams:        make(map[uint32]*streamEntry),
		streamsRev:     make(map[string][]uint32),
		timeoutDevices: make(chan string, timeoutChanCap),
		timeoutStreams: make(chan StreamTimeout, timeoutChanCap),
	}
}

func (m *Memory) IsConnected() bool { return true }

func (m *Memory) Counts() (int, int) {
	m.dmu.RLock()
	devices := len(m.devices)
	m.dmu.RUnlock()

	m.smu.RLock()
	streams := len(m.streams)
	m.smu.RUnlock()
	return devices, streams
}

// ServiceID identifies this store instance.
func (m *Memory) ServiceID() string { return m.serviceID }

// Counter setters keep the values monotonic: a stale set never rolls a
// counter back under a concurrent add.

func (m *Memory) SetGlobalSN(v uint32)          { casMax(&m.globalSN, v) }
func (m *Memory) AddFetchGlobalSN() uint32      { return m.globalSN.Add(1) }
func (m *Memory) SetRegisterSequence(v uint32)  { casMax(&m.registerSeq, v) }
func (m *Memory) AddFetchRegisterSequence() uint32 { return m.registerSeq.Add(1) }
func (m *Memory) SetGlobalSequence(v uint32)    { casMax(&m.globalSeq, v) }
func (m *Memory) AddFetchGlobalSequence() uint32   { return m.globalSeq.Add(1) }

func casMax(c *atomic.Uint32, v uint32) {
	for {
		cur := c.Load()
		if v <= cur || c.CompareAndSwap(cur, v) {
			return
		}
	}
}

func (m *Memory) FindDeviceByGBCode(gbCode string) (DeviceInfo, bool) {
	m.dmu.RLock()
	defer m.dmu.RUnlock()

	d, ok := m.devices[gbCode]
	if !ok {
		return DeviceInfo{}, false
	}
	return DeviceInfo{Branch: d.branch, Route: d.route}, true
}

func (m *Memory) FindDeviceByStreamID(streamID uint32) (DeviceInfo, bool) {
	gbCode := m.FindGBCode(streamID)
	if gbCode == "" {
		return DeviceInfo{}, false
	}
	return m.FindDeviceByGBCode(gbCode)
}

func (m *Memory) FindGBCode(streamID uint32) string {
	m.smu.RLock()
	defer m.smu.RUnlock()

	if s, ok := m.streams[streamID]; ok {
		return s.gbCode
	}
	return ""
}

func (m *Memory) FindGBCodeByCallerID(callerID string) (string, bool) {
	m.smu.RLock()
	defer m.smu.RUnlock()

	for _, s := range m.streams {
		if s.callerID == callerID {
			return s.gbCode, true
		}
	}
	return "", false
}

func (m *Memory) Register(branch, gbCode string, route Route) bool {
	m.dmu.Lock()
	defer m.dmu.Unlock()

	if _, ok := m.devices[gbCode]; ok {
		return false
	}
	m.devices[gbCode] = &deviceEntry{
		branch: branch,
		route:  route,
		ts:     time.Now().Unix(),
	}
	m.log.Debug().Str("gb_code", gbCode).Str("addr", route.Addr).Msg("device registered")
	return true
}

func (m *Memory) Unregister(gbCode string) bool {
	m.dmu.Lock()
	defer m.dmu.Unlock()

	if _, ok := m.devices[gbCode]; !ok {
		return false
	}
	delete(m.devices, gbCode)
	return true
}

func (m *Memory) RegisterKeepalive(gbCode string) bool {
	m.dmu.Lock()
	defer m.dmu.Unlock()

	d, ok := m.devices[gbCode]
	if !ok {
		return false
	}
	d.ts = time.Now().Unix()
	return true
}

func (m *Memory) SaveCatalog(gbCode string, subs []SubDevice) bool {
	m.dmu.Lock()
	defer m.dmu.Unlock()

	d, ok := m.devices[gbCode]
	if !ok {
		return false
	}
	// Catalog responses come in pages, each one appends.
	d.subs = append(d.subs, subs...)
	return true
}

func (m *Memory) Catalog(gbCode string) []SubDevice {
	m.dmu.RLock()
	defer m.dmu.RUnlock()

	if d, ok := m.devices[gbCode]; ok {
		return append([]SubDevice(nil), d.subs...)
	}
	return nil
}

func (m *Memory) Invite(gbCode, channelID, callerID, fromTag string, live bool) (InviteResult, bool) {
	dev, ok := m.FindDeviceByGBCode(gbCode)
	if !ok {
		return InviteResult{}, false
	}

	var streamID uint32
	if live {
		streamID = m.liveStreamID.Add(1)
	} else {
		streamID = m.replayStreamID.Add(1)
	}

	m.smu.Lock()
	defer m.smu.Unlock()

	m.streams[streamID] = &streamEntry{
		gbCode:    gbCode,
		channelID: channelID,
		callerID:  callerID,
		fromTag:   fromTag,
		ts:        time.Now().Unix(),
		live:      live,
	}

	// Playing already when the reverse list was non-empty before this one.
	alreadyPlaying := len(m.streamsRev[gbCode]) > 0
	m.streamsRev[gbCode] = append(m.streamsRev[gbCode], streamID)

	return InviteResult{
		AlreadyPlaying: alreadyPlaying,
		StreamID:       streamID,
		ChannelID:      channelID,
		Branch:         dev.Branch,
		Route:          dev.Route,
	}, true
}

func (m *Memory) UpdateStreamServerInfo(streamID uint32, mediaIP string, mediaPort int) {
	m.smu.Lock()
	defer m.smu.Unlock()

	if s, ok := m.streams[streamID]; ok {
		s.mediaIP = mediaIP
		s.mediaPort = mediaPort
	}
}

func (m *Memory) UpdateStreamTagInfo(fromTag, toTag string) {
	m.smu.Lock()
	defer m.smu.Unlock()

	for _, s := range m.streams {
		if s.fromTag == fromTag {
			s.toTag = toTag
			return
		}
	}
}

func (m *Memory) Bye(gbCode string, streamID uint32) (ByeResult, bool) {
	m.smu.Lock()
	s, ok := m.streams[streamID]
	if !ok {
		m.smu.Unlock()
		return ByeResult{}, false
	}
	res := ByeResult{
		CallerID:  s.callerID,
		FromTag:   s.fromTag,
		ToTag:     s.toTag,
		MediaIP:   s.mediaIP,
		MediaPort: s.mediaPort,
	}
	delete(m.streams, streamID)

	ids := m.streamsRev[gbCode]
	kept := ids[:0]
	for _, id := range ids {
		if id != streamID {
			kept = append(kept, id)
		}
	}
	if len(kept) == 0 {
		delete(m.streamsRev, gbCode)
		res.Last = true
	} else {
		m.streamsRev[gbCode] = kept
	}
	m.smu.Unlock()

	// The device may be gone already (unregistered or timed out first). The
	// stream result still stands, just without a route to send a BYE on.
	if dev, found := m.FindDeviceByGBCode(gbCode); found {
		res.Branch = dev.Branch
		res.Route = dev.Route
	}
	return res, true
}

func (m *Memory) StreamKeepalive(gbCode string, streamID uint32) bool {
	m.smu.Lock()
	defer m.smu.Unlock()

	s, ok := m.streams[streamID]
	if !ok || s.gbCode != gbCode {
		return false
	}
	s.ts = time.Now().Unix()
	return true
}

func (m *Memory) TimeoutDevices() <-chan string        { return m.timeoutDevices }
func (m *Memory) TimeoutStreams() <-chan StreamTimeout { return m.timeoutStreams }

// StartTimeoutCheck runs the sweeper until StopTimeoutCheck. Every second it
// reports entries whose last activity is older than the configured timeout.
// Entries are only reported, never removed; delivery is best effort and
// drops when the consumer lags.
func (m *Memory) StartTimeoutCheck() {
	m.swmu.Lock()
	defer m.swmu.Unlock()

	if m.quit != nil {
		return
	}
	m.quit = make(chan struct{})
	m.done = make(chan struct{})

	go m.sweep(m.quit, m.done)
}

func (m *Memory) StopTimeoutCheck() {
	m.swmu.Lock()
	defer m.swmu.Unlock()

	if m.quit == nil {
		return
	}
	close(m.quit)
	<-m.done
	m.quit = nil
	m.done = nil
}

func (m *Memory) sweep(quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	m.log.Info().Msg("timeout check started")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			m.log.Info().Msg("timeout check stopped")
			return
		case <-ticker.C:
			m.sweepOnce(time.Now().Unix())
		}
	}
}

func (m *Memory) sweepOnce(now int64) {
	m.smu.RLock()
	var expiredStreams []StreamTimeout
	for id, s := range m.streams {
		if now-s.ts > m.streamTimeout {
			expiredStreams = append(expiredStreams, StreamTimeout{GBCode: s.gbCode, StreamID: id})
		}
	}
	m.smu.RUnlock()

	for _, st := range expiredStreams {
		select {
		case m.timeoutStreams <- st:
		default:
			m.log.Warn().Uint32("stream_id", st.StreamID).Msg("timeout stream report dropped")
		}
	}

	m.dmu.RLock()
	var expiredDevices []string
	for gbCode, d := range m.devices {
		if now-d.ts > m.deviceTimeout {
			expiredDevices = append(expiredDevices, gbCode)
		}
	}
	m.dmu.RUnlock()

	for _, gbCode := range expiredDevices {
		select {
		case m.timeoutDevices <- gbCode:
		default:
			m.log.Warn().Str("gb_code", gbCode).Msg("timeout device report dropped")
		}
	}
}
