package service

import (
	"context"
	"sync"
	"time"

	"github.com/BerniceZTT/crm_web/utils"
)

// Poller 可取消的定时任务，Stop 或 ctx 取消后不再触发
type Poller struct {
	name     string
	interval time.Duration
	task     func(ctx context.Context)

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewPoller 创建定时任务
func NewPoller(name string, interval time.Duration, task func(ctx context.Context)) *Poller {
	return &Poller{name: name, interval: interval, task: task, done: make(chan struct{})}
}

// Start 在后台启动；immediate 为 true 时先执行一次
func (p *Poller) Start(ctx context.Context, immediate bool) {
	p.once.Do(func() {
		ctx, p.cancel = context.WithCancel(ctx)
		go p.run(ctx, immediate)
	})
}

func (p *Poller) run(ctx context.Context, immediate bool) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	utils.Logger.Debug().Str("task", p.name).Dur("interval", p.interval).Msg("定时任务已启动")
	if immediate {
		p.task(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			utils.Logger.Debug().Str("task", p.name).Msg("定时任务已停止")
			return
		case <-ticker.C:
			p.task(ctx)
		}
	}
}

// Stop 停止并等待正在执行的任务结束
func (p *Poller) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

// Done 任务循环退出后关闭；未启动时永不关闭
func (p *Poller) Done() <-chan struct{} {
	return p.done
}
