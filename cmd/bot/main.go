package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"voxelrelay.ai/internal/protocol"
	"voxelrelay.ai/internal/replication/netcodec"
	"voxelrelay.ai/internal/sim/encoding"
	"voxelrelay.ai/internal/sim/entity"
	"voxelrelay.ai/internal/sim/mathx"
	"voxelrelay.ai/internal/sim/world"
)

// view is what the bot has been told about the world.
type view struct {
	entities map[uint32]struct{}
	regions  map[[3]int]struct{}
	blocks   int
	chats    int

	self uint32
	// build is the cell two blocks above where the character first appeared.
	build   [3]int
	hasHome bool
	built   bool
}

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name  = flag.String("name", "bot", "character name")
		color = flag.String("color", "", "character color (#rrggbb)")
		vd    = flag.String("view", "moderate", "view distance: near, moderate, far, ultra")
		zstd  = flag.Bool("zstd", true, "ask for zstd-compressed frames")
		say   = flag.Int("say_every", 200, "chat every N envelopes (0 disables)")
		build = flag.Int("build_every", 300, "place or dig a block every N envelopes (0 disables)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Name:            *name,
		Color:           *color,
		ViewDistance:    *vd,
		Capabilities:    protocol.HelloCapabilities{Zstd: *zstd},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil {
		logger.Fatalf("read WELCOME: %v", err)
	}
	if welcome.Type != protocol.TypeWelcome {
		logger.Fatalf("handshake rejected: %+v", welcome)
	}
	logger.Printf("WELCOME session=%s character=%d tick_rate=%d seed=%d zstd=%v",
		welcome.SessionID, welcome.CharacterNetID, welcome.WorldParams.TickRateHz, welcome.WorldParams.Seed, welcome.Zstd)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	lib := netcodec.NewLibrary()
	v := &view{entities: map[uint32]struct{}{}, regions: map[[3]int]struct{}{}, self: welcome.CharacterNetID}
	for n := 1; ; n++ {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Printf("disconnected: %v", err)
			return
		}
		if kind == websocket.BinaryMessage {
			if msg, err = encoding.DecompressFrame(msg); err != nil {
				logger.Printf("WARN bad frame: %v", err)
				continue
			}
		}
		var env protocol.NetMessage
		if err := json.Unmarshal(msg, &env); err != nil || env.Type != protocol.TypeNet {
			continue
		}
		v.apply(logger, lib, env)

		if n%100 == 0 {
			logger.Printf("t=%dms entities=%d regions=%d block_changes=%d chats=%d", env.Time, len(v.entities), len(v.regions), v.blocks, v.chats)
		}
		reply := protocol.NetMessage{Type: protocol.TypeNet, Time: env.Time}
		if n%20 == 0 {
			reply.UpdateEntities = append(reply.UpdateEntities, turn(welcome.CharacterNetID, float64(n%360)))
		}
		if *say > 0 && n%*say == 0 {
			raw, err := lib.Encode(&entity.SayEvent{Text: fmt.Sprintf("%s here, %d regions loaded", *name, len(v.regions))})
			if err == nil {
				reply.Events = append(reply.Events, protocol.EventMsg{Target: welcome.CharacterNetID, Event: raw})
			}
		}
		if *build > 0 && n%*build == 0 && v.hasHome {
			if raw, err := lib.Encode(v.nextEdit()); err == nil {
				reply.Events = append(reply.Events, protocol.EventMsg{Target: welcome.CharacterNetID, Event: raw})
			}
		}
		if len(reply.UpdateEntities) == 0 && len(reply.Events) == 0 {
			continue
		}
		if err := write(conn, welcome.Zstd, reply); err != nil {
			logger.Printf("write: %v", err)
			return
		}
	}
}

func (v *view) apply(logger *log.Logger, lib *netcodec.Library, env protocol.NetMessage) {
	for _, p := range env.InvalidateRegions {
		delete(v.regions, p)
	}
	for _, r := range env.Regions {
		if _, _, err := encoding.DecodeRegion(encoding.RegionPayload{Pos: r.Pos, Size: r.Size, Blocks: r.Blocks, Layers: r.Layers}); err != nil {
			logger.Printf("WARN region %v: %v", r.Pos, err)
			continue
		}
		v.regions[r.Pos] = struct{}{}
	}
	for _, id := range env.RemoveEntities {
		delete(v.entities, id)
	}
	for _, c := range env.CreateEntities {
		v.entities[c.NetID] = struct{}{}
		if c.NetID == v.self && !v.hasHome {
			if pos, ok := location(c.Entity); ok {
				v.build = [3]int{int(math.Floor(pos.X)), int(math.Floor(pos.Y)) + 2, int(math.Floor(pos.Z))}
				v.hasHome = true
			}
		}
	}
	v.blocks += len(env.BlockChanges)
	for _, e := range env.Events {
		ev, err := lib.Decode(e.Event)
		if err != nil {
			continue
		}
		switch ev := ev.(type) {
		case *entity.ChatMessageEvent:
			v.chats++
			logger.Printf("chat <%s> %s", ev.From, ev.Text)
		case *entity.DamagedEvent:
			logger.Printf("took %d damage from %d", ev.Amount, ev.Instigator)
		}
	}
}

// nextEdit alternates between placing a log at the build cell and digging it.
func (v *view) nextEdit() entity.Event {
	v.built = !v.built
	if v.built {
		return &entity.PlaceBlockEvent{Pos: v.build, Block: world.Log}
	}
	return &entity.DigBlockEvent{Pos: v.build}
}

func location(raw json.RawMessage) (mathx.Vec3f, bool) {
	var p netcodec.Packed
	if err := json.Unmarshal(raw, &p); err != nil {
		return mathx.Vec3f{}, false
	}
	field, ok := p.Components[entity.TypeLocation]["pos"]
	if !ok {
		return mathx.Vec3f{}, false
	}
	var pos mathx.Vec3f
	if err := json.Unmarshal(field, &pos); err != nil {
		return mathx.Vec3f{}, false
	}
	return pos, true
}

// turn sets the character's yaw, the one Location field the client owns.
func turn(id uint32, yaw float64) protocol.UpdateEntity {
	field, _ := json.Marshal(yaw)
	packed, _ := json.Marshal(netcodec.Packed{
		Components: map[entity.ComponentType]map[string]json.RawMessage{
			entity.TypeLocation: {"yaw": field},
		},
	})
	return protocol.UpdateEntity{NetID: id, Entity: packed}
}

func write(conn *websocket.Conn, zstd bool, m protocol.NetMessage) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if zstd {
		return conn.WriteMessage(websocket.BinaryMessage, encoding.CompressFrame(b))
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}
