// Package dns 解析协调服务器主机名
//
// 默认使用系统解析器；配置了 CustomResolver 时直接向该服务器
// 发送 A/AAAA 查询。成功结果写入带过期时间的 LRU 缓存，遇到
// 暂时性失败（超时、服务器不可达）时回退到缓存中的上次结果。
//
// 名字不存在属于非网络错误，调用方据此停止自动重连。
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	dnsmsg "github.com/miekg/dns"

	"github.com/dep2p/go-vport/config"
	"github.com/dep2p/go-vport/internal/util/logger"
)

var log = logger.Logger("discovery.dns")

// 错误定义
var (
	// ErrHostNotFound 主机名不存在或没有地址记录
	ErrHostNotFound = errors.New("host not found")

	// ErrEmptyHost 主机名为空
	ErrEmptyHost = errors.New("empty host")
)

// Resolver 主机名解析器
type Resolver struct {
	config config.ResolverConfig
	system *net.Resolver
	client *dnsmsg.Client
	cache  *expirable.LRU[string, []netip.Addr]
}

// NewResolver 创建解析器
func NewResolver(cfg config.ResolverConfig) *Resolver {
	if cfg.CacheSize < 1 {
		cfg.CacheSize = 64
	}
	r := &Resolver{
		config: cfg,
		system: net.DefaultResolver,
		cache:  expirable.NewLRU[string, []netip.Addr](cfg.CacheSize, nil, cfg.CacheTTL.Duration()),
	}
	if cfg.CustomResolver != "" {
		r.client = &dnsmsg.Client{Net: "udp", Timeout: cfg.Timeout.Duration()}
	}
	return r
}

// Resolve 解析主机名；IP 字面量直接返回
func (r *Resolver) Resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	if host == "" {
		return nil, ErrEmptyHost
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{addr.Unmap()}, nil
	}

	if t := r.config.Timeout.Duration(); t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	var (
		addrs []netip.Addr
		err   error
	)
	if r.client != nil {
		addrs, err = r.exchange(ctx, host)
	} else {
		addrs, err = r.lookup(ctx, host)
	}

	switch {
	case err == nil:
		r.cache.Add(host, addrs)
		log.Debug("解析成功", "host", host, "addrs", len(addrs))
		return addrs, nil
	case errors.Is(err, ErrHostNotFound):
		r.cache.Remove(host)
		return nil, err
	}

	if cached, ok := r.cache.Get(host); ok {
		log.Warn("解析失败，使用缓存结果", "host", host, "err", err)
		return cached, nil
	}
	return nil, err
}

// Cached 返回缓存中的地址
func (r *Resolver) Cached(host string) ([]netip.Addr, bool) {
	return r.cache.Get(host)
}

func (r *Resolver) lookup(ctx context.Context, host string) ([]netip.Addr, error) {
	addrs, err := r.system.LookupNetIP(ctx, "ip", host)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return nil, fmt.Errorf("%w: %s", ErrHostNotFound, host)
		}
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrHostNotFound, host)
	}
	out := make([]netip.Addr, len(addrs))
	for i, a := range addrs {
		out[i] = a.Unmap()
	}
	return out, nil
}

func (r *Resolver) exchange(ctx context.Context, host string) ([]netip.Addr, error) {
	var (
		out      []netip.Addr
		notFound bool
		lastErr  error
	)
	for _, qtype := range []uint16{dnsmsg.TypeA, dnsmsg.TypeAAAA} {
		m := new(dnsmsg.Msg)
		m.SetQuestion(dnsmsg.Fqdn(host), qtype)
		m.RecursionDesired = true

		in, _, err := r.client.ExchangeContext(ctx, m, r.config.CustomResolver)
		if err != nil {
			lastErr = err
			continue
		}
		switch in.Rcode {
		case dnsmsg.RcodeSuccess:
		case dnsmsg.RcodeNameError:
			notFound = true
			continue
		default:
			lastErr = fmt.Errorf("rcode %s", dnsmsg.RcodeToString[in.Rcode])
			continue
		}
		for _, rr := range in.Answer {
			switch v := rr.(type) {
			case *dnsmsg.A:
				if a, ok := netip.AddrFromSlice(v.A); ok {
					out = append(out, a.Unmap())
				}
			case *dnsmsg.AAAA:
				if a, ok := netip.AddrFromSlice(v.AAAA); ok {
					out = append(out, a)
				}
			}
		}
	}

	switch {
	case len(out) > 0:
		return out, nil
	case lastErr != nil:
		return nil, fmt.Errorf("resolve %s via %s: %w", host, r.config.CustomResolver, lastErr)
	case notFound:
		return nil, fmt.Errorf("%w: %s", ErrHostNotFound, host)
	default:
		return nil, fmt.Errorf("%w: %s (no address records)", ErrHostNotFound, host)
	}
}

// TTL 返回缓存时间
func (r *Resolver) TTL() time.Duration {
	return r.config.CacheTTL.Duration()
}
