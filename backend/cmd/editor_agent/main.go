// editor_agent 是一个命令行编辑端：连接协作服务，从标准输入读编辑命令，
// 与房间内其他会话实时同步。
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"beatmapCollab/backend/config"
	"beatmapCollab/backend/internal/beatmap"
	"beatmapCollab/backend/internal/collab"
	"beatmapCollab/backend/internal/command"
	"beatmapCollab/backend/internal/localstore"
	"beatmapCollab/backend/internal/ws"
)

const heartbeatInterval = 10 * time.Second

func main() {
	flag.Parse()
	defer glog.Flush()

	cfg, err := config.LoadAgent()
	if err != nil {
		glog.Fatalf("init config failed: %v", err)
	}
	if cfg.Beatmap.ID == "" {
		glog.Fatal("beatmap.id is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cache, err := localstore.Open(cfg.Cache.Path)
	if err != nil {
		glog.Fatalf("open local cache: %v", err)
	}
	defer cache.Close()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	client, err := ws.Dial(dialCtx, cfg.Server.URL, cfg.Beatmap.ID, cfg.Auth.Token)
	cancel()
	if err != nil {
		glog.Fatalf("connect: %v", err)
	}

	st, err := client.WaitRoomState()
	if err != nil {
		glog.Fatalf("join room: %v", err)
	}
	b, err := beatmap.UnmarshalSnapshot(st.Snapshot)
	if err != nil {
		glog.Fatalf("bad room snapshot: %v", err)
	}
	if e, err := cache.Get(cfg.Beatmap.ID); err == nil && e.Revision > st.Revision {
		glog.Warningf("[agent] local cache is at revision %d, server at %d; using server state", e.Revision, st.Revision)
	}

	mgr := command.NewManager(b, command.NewRegistry(cfg.Editor.Strict))
	rec := collab.NewReconciler(mgr, client, cfg.Editor.FlushInterval)
	rec.SetSessionID(st.SessionID)

	a := &agent{
		rec:       rec,
		remote:    client,
		cache:     cache,
		beatmapID: cfg.Beatmap.ID,
		revision:  st.Revision,
		out:       os.Stdout,
	}
	fmt.Fprintf(os.Stdout, "joined %s as %s at revision %d\n%s\n", cfg.Beatmap.ID, st.SessionID, st.Revision, usage)

	eg, egCtx := errgroup.WithContext(ctx)

	// 读 goroutine 只做转发，所有对 manager 的修改都在主循环里。
	// 主循环退出后它们不会卡在发送上：连接读由 client.Close 打断，
	// 标准输入读会停在 Scan 上直到进程退出。
	msgs := make(chan ws.ServerMessage, 64)
	readErr := make(chan error, 1)
	go func() {
		readErr <- pump(egCtx, client.Read, msgs)
	}()
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		err := pump(egCtx, func() (string, error) {
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return "", err
				}
				return "", io.EOF
			}
			return sc.Text(), nil
		}, lines)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
			glog.Warningf("[agent] stdin: %v", err)
		}
	}()

	eg.Go(func() error { return rec.Run(egCtx) })
	eg.Go(func() error {
		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()
		for {
			select {
			case <-egCtx.Done():
				return egCtx.Err()
			case err := <-readErr:
				return fmt.Errorf("connection lost: %w", err)
			case msg := <-msgs:
				if err := a.onMessage(msg); err != nil {
					glog.Errorf("[agent] apply remote batch: %v", err)
				}
			case line, ok := <-lines:
				if !ok {
					return context.Canceled
				}
				quit, err := a.exec(egCtx, line)
				if err != nil {
					fmt.Fprintf(os.Stdout, "error: %v\n", err)
				}
				if quit {
					return context.Canceled
				}
			case <-heartbeat.C:
				if err := client.Heartbeat(egCtx); err != nil {
					glog.Warningf("[agent] heartbeat: %v", err)
				}
			}
		}
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		glog.Errorf("[agent] stopped: %v", err)
	}
	_ = client.Close()
	if err := cache.Put(cfg.Beatmap.ID, a.revision, b.Snapshot()); err != nil {
		glog.Errorf("[agent] local cache: %v", err)
	}
}
