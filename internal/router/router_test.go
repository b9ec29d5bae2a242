package router

import (
	"encoding/json"
	"errors"
	"testing"

	"dev.c0redev.nowgate/internal/ident"
	"dev.c0redev.nowgate/internal/peers"
	"dev.c0redev.nowgate/internal/proto"
)

type sent struct {
	to  ident.MAC
	pkt *proto.Packet
}

type fakeRadio struct {
	peers map[ident.MAC]bool
	sends []sent
	adds  int
}

func newFakeRadio() *fakeRadio { return &fakeRadio{peers: map[ident.MAC]bool{}} }

func (f *fakeRadio) Send(to ident.MAC, b []byte) error {
	p, err := proto.Decode(b)
	if err != nil {
		return err
	}
	f.sends = append(f.sends, sent{to, p})
	return nil
}

func (f *fakeRadio) AddPeer(id ident.MAC, key []byte, encrypt bool) error {
	f.adds++
	f.peers[id] = encrypt
	return nil
}

func (f *fakeRadio) PeerExists(id ident.MAC) bool {
	_, ok := f.peers[id]
	return ok
}

func (f *fakeRadio) SupportsEncryption() bool { return true }

type fakeHost struct {
	connected bool
	lines     []string
}

func (h *fakeHost) Connected() bool { return h.connected }
func (h *fakeHost) WriteLine(s string) error {
	h.lines = append(h.lines, s)
	return nil
}

type fakeDir struct {
	ids  []ident.MAC
	max  int
	adds int
}

func (d *fakeDir) Add(id ident.MAC, key []byte) error {
	d.adds++
	if d.Contains(id) {
		return nil
	}
	if d.max > 0 && len(d.ids) >= d.max {
		return peers.ErrCapacityExceeded
	}
	d.ids = append(d.ids, id)
	return nil
}

func (d *fakeDir) Contains(id ident.MAC) bool {
	for _, x := range d.ids {
		if x == id {
			return true
		}
	}
	return false
}

var (
	gwMAC   = ident.MAC{0x02, 0xaa, 0, 0, 0, 1}
	nodeMAC = ident.MAC{0x24, 0x6f, 0x28, 0x11, 0x22, 0x33}
)

func newTestRouter() (*Router, *fakeRadio, *fakeHost, *fakeDir) {
	rad, host, dir := newFakeRadio(), &fakeHost{connected: true}, &fakeDir{}
	r := New(Options{
		Self:      gwMAC,
		Directory: dir,
		Radio:     rad,
		Host:      host,
		KeyFunc:   func(ident.MAC) ([]byte, error) { return make([]byte, 32), nil },
		Encrypt:   true,
	})
	return r, rad, host, dir
}

func payloadObj(t *testing.T, p *proto.Packet) Object {
	t.Helper()
	o, err := ParseObject(p.Payload)
	if err != nil {
		t.Fatalf("payload %q: %v", p.Payload, err)
	}
	return o
}

func TestHostGetConfig_ZeroMACRejected(t *testing.T) {
	r, rad, _, _ := newTestRouter()
	err := r.HandleHostLine(`{"mac":"00:00:00:00:00:00","type":"get_config"}`)
	if !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("err = %v", err)
	}
	if err := r.HandleHostLine(`{"mac":"zz","type":"get_config"}`); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("malformed mac err = %v", err)
	}
	if err := r.HandleHostLine(`{"type":"get_config"}`); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("missing mac err = %v", err)
	}
	if len(rad.sends) != 0 {
		t.Fatalf("sends = %d", len(rad.sends))
	}
}

func TestHostGetConfig(t *testing.T) {
	r, rad, _, _ := newTestRouter()
	if err := r.HandleHostLine(`{"mac":"24:6F:28:11:22:33","type":"get_config"}`); err != nil {
		t.Fatal(err)
	}
	if len(rad.sends) != 1 || rad.sends[0].to != nodeMAC {
		t.Fatalf("sends = %+v", rad.sends)
	}
	if rad.sends[0].pkt.Kind != proto.KindUnicast {
		t.Fatal("expected unicast packet")
	}
	if typ, _ := payloadObj(t, rad.sends[0].pkt).String("type"); typ != TypeConfigRequest {
		t.Fatalf("type = %q", typ)
	}
	if enc, ok := rad.peers[nodeMAC]; !ok || enc {
		t.Fatalf("unknown target not added unencrypted: ok=%v enc=%v", ok, enc)
	}
}

func TestHostSetConfig(t *testing.T) {
	r, rad, _, _ := newTestRouter()
	line := `{"mac":"24:6F:28:11:22:33","type":"set_config","configurations":{"rate": 5, "names":["a","b"]}}`
	if err := r.HandleHostLine(line); err != nil {
		t.Fatal(err)
	}
	o := payloadObj(t, rad.sends[0].pkt)
	if typ, _ := o.String("type"); typ != TypeSetConfig {
		t.Fatalf("type = %q", typ)
	}
	cfg, _ := o.Raw("configurations")
	if string(cfg) != `{"rate":5,"names":["a","b"]}` {
		t.Fatalf("configurations = %s", cfg)
	}

	err := r.HandleHostLine(`{"mac":"24:6F:28:11:22:33","type":"set_config"}`)
	if !errors.Is(err, ErrMalformedCommand) {
		t.Fatalf("missing configurations err = %v", err)
	}
}

func TestHostForwardVerbatim(t *testing.T) {
	r, rad, _, _ := newTestRouter()
	if err := r.HandleHostLine(`{"mac":"24:6F:28:11:22:33","type":"forward","payload":{"x":1}}`); err != nil {
		t.Fatal(err)
	}
	if got := string(rad.sends[0].pkt.Payload); got != `{"x":1}` {
		t.Fatalf("payload = %s", got)
	}
	if err := r.HandleHostLine(`{"mac":"24:6F:28:11:22:33","type":"forward"}`); !errors.Is(err, ErrMalformedCommand) {
		t.Fatalf("missing payload err = %v", err)
	}
}

func TestHostUnknownAndLegacy(t *testing.T) {
	r, rad, _, _ := newTestRouter()
	if err := r.HandleHostLine(`{"mac":"24:6F:28:11:22:33","type":"reboot"}`); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("err = %v", err)
	}
	if err := r.HandleHostLine(`{"mac":"24:6F:28:11:22:33","cmd":"query_config"}`); !errors.Is(err, ErrMalformedCommand) {
		t.Fatalf("legacy cmd err = %v", err)
	}
	if err := r.HandleHostLine(`not json`); !errors.Is(err, ErrNotJSON) {
		t.Fatalf("err = %v", err)
	}
	if len(rad.sends) != 0 {
		t.Fatalf("sends = %d", len(rad.sends))
	}
}

func TestRegisterTwice(t *testing.T) {
	r, rad, host, dir := newTestRouter()
	for i := 0; i < 2; i++ {
		if err := r.HandleRadioPayload(nodeMAC, []byte(`{"type":"register"}`)); err != nil {
			t.Fatal(err)
		}
	}
	if len(dir.ids) != 1 {
		t.Fatalf("stored = %v", dir.ids)
	}
	if !rad.peers[nodeMAC] {
		t.Fatal("registered node not added as encrypted radio peer")
	}
	if len(rad.sends) != 2 {
		t.Fatalf("acks = %d", len(rad.sends))
	}
	for _, s := range rad.sends {
		if s.to != ident.Broadcast || s.pkt.Kind != proto.KindBroadcast {
			t.Fatalf("ack not broadcast: %v", s.to)
		}
		o := payloadObj(t, s.pkt)
		typ, _ := o.String("type")
		m, _ := o.String("mac")
		if typ != TypeRegisterAck || m != gwMAC.String() {
			t.Fatalf("ack = %s", s.pkt.Payload)
		}
	}
	if len(host.lines) != 2 || host.lines[0] != `{"type":"register"}` {
		t.Fatalf("mirrored = %q", host.lines)
	}
}

func TestRegisterDirectoryFullStillAcks(t *testing.T) {
	r, rad, _, dir := newTestRouter()
	dir.max = 1
	dir.ids = []ident.MAC{{0x02, 9, 9, 9, 9, 9}}
	err := r.HandleFromRadio(nodeMAC, NewObject().SetString("type", TypeRegister))
	if !errors.Is(err, peers.ErrCapacityExceeded) {
		t.Fatalf("err = %v", err)
	}
	if len(rad.sends) != 1 {
		t.Fatalf("ack not sent: %d", len(rad.sends))
	}
	if _, ok := rad.peers[nodeMAC]; ok {
		t.Fatal("unstored node added to radio table")
	}
}

func TestRegisterFromBroadcastNotStored(t *testing.T) {
	r, rad, _, dir := newTestRouter()
	for _, from := range []ident.MAC{ident.Broadcast, {}} {
		if err := r.HandleRadioPayload(from, []byte(`{"type":"register"}`)); err != nil {
			t.Fatal(err)
		}
	}
	if dir.adds != 0 || rad.adds != 0 {
		t.Fatalf("reserved sender stored: dir adds %d, radio adds %d", dir.adds, rad.adds)
	}
	if len(rad.sends) != 2 {
		t.Fatalf("acks = %d", len(rad.sends))
	}
	for _, s := range rad.sends {
		if typ, _ := payloadObj(t, s.pkt).String("type"); s.to != ident.Broadcast || typ != TypeRegisterAck {
			t.Fatalf("sent %v %s", s.to, s.pkt.Payload)
		}
	}
}

func TestRadioUnknownTypeIgnored(t *testing.T) {
	r, rad, host, dir := newTestRouter()
	for _, p := range []string{`{"type":"telemetry","temp":21}`, `{"temp":21}`, `{"type":"get_config"}`} {
		if err := r.HandleRadioPayload(nodeMAC, []byte(p)); err != nil {
			t.Fatalf("%s: %v", p, err)
		}
	}
	if len(rad.sends) != 0 || rad.adds != 0 || dir.adds != 0 {
		t.Fatalf("sends %d, radio adds %d, dir adds %d", len(rad.sends), rad.adds, dir.adds)
	}
	if len(host.lines) != 3 {
		t.Fatalf("mirrored = %q", host.lines)
	}
}

func TestRadioNonJSON(t *testing.T) {
	r, rad, host, _ := newTestRouter()
	if err := r.HandleRadioPayload(nodeMAC, []byte("temp=21")); !errors.Is(err, ErrNotJSON) {
		t.Fatalf("err = %v", err)
	}
	if len(host.lines) != 0 || len(rad.sends) != 0 {
		t.Fatal("non-JSON routed")
	}
}

func TestRadioMirrorCompacts(t *testing.T) {
	r, _, host, _ := newTestRouter()
	if err := r.HandleRadioPayload(nodeMAC, []byte("{\n \"temp\": 21\n}")); err != nil {
		t.Fatal(err)
	}
	if len(host.lines) != 1 || host.lines[0] != `{"temp":21}` {
		t.Fatalf("lines = %q", host.lines)
	}
}

func TestDispatchToHost_Disconnected(t *testing.T) {
	r, _, host, _ := newTestRouter()
	host.connected = false
	if err := r.DispatchToHost(`{"a":1}`); !errors.Is(err, ErrHostDisconnected) {
		t.Fatalf("err = %v", err)
	}
	if len(host.lines) != 0 {
		t.Fatal("written while disconnected")
	}
}

func TestObjectSetAndMarshal(t *testing.T) {
	o := NewObject().SetString("type", "x")
	if err := o.Set("n", 3); err != nil {
		t.Fatal(err)
	}
	b, err := o.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil || m["type"] != "x" || m["n"] != float64(3) {
		t.Fatalf("marshal = %s (%v)", b, err)
	}
	if _, err := ParseObject([]byte(`[1,2]`)); !errors.Is(err, ErrNotJSON) {
		t.Fatal("array accepted as object")
	}
}
