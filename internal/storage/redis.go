// Package storage Redis 持久化：账本快照、成交流水、权益历史、决策记录
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/life2you_mini/quorum/internal/models"
	"github.com/life2you_mini/quorum/internal/trading"
)

// 键名后缀常量，完整键为 keyPrefix + 后缀
const (
	ledgerSnapshotKey  = "ledger:snapshot"
	tradeHistoryKey    = "ledger:trades"
	equityHistoryKey   = "ledger:equity"
	decisionHistoryKey = "decision:history"
)

// 有界列表长度上限
const (
	maxTradeRecords    = 500
	maxEquitySnapshots = 2000
	maxDecisionRecords = 200
)

// Options Redis 连接配置
type Options struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Client Redis 存储客户端封装
// 实现 trading.LedgerStore 与监控器的快照落盘接口
type Client struct {
	rdb       *redis.Client
	logger    *zap.Logger
	keyPrefix string
}

// NewClient 创建 Redis 存储客户端并验证连通性
func NewClient(opts Options, logger *zap.Logger) (*Client, error) {
	if opts.Addr == "" {
		opts.Addr = "localhost:6379"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("无法连接到Redis: %w", err)
	}

	return &Client{
		rdb:       rdb,
		logger:    logger.With(zap.String("component", "redis_storage")),
		keyPrefix: opts.KeyPrefix,
	}, nil
}

// Close 关闭Redis连接
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping 连通性检查
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) key(suffix string) string {
	return c.keyPrefix + suffix
}

// pushBounded 左推 JSON 并裁剪列表长度，新记录在表头
func (c *Client) pushBounded(ctx context.Context, key string, v interface{}, max int64) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("序列化失败: %w", err)
	}
	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, max-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("写入有界列表失败: %w", err)
	}
	return nil
}

// listRange 读取有界列表并反序列化到 out（指向切片的指针）
func listRange[T any](ctx context.Context, c *Client, key string, limit int64) ([]T, error) {
	if limit <= 0 {
		limit = -1
	}
	raw, err := c.rdb.LRange(ctx, key, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("读取列表失败: %w", err)
	}
	out := make([]T, 0, len(raw))
	for _, item := range raw {
		var v T
		if err := json.Unmarshal([]byte(item), &v); err != nil {
			c.logger.Warn("跳过无法解析的历史记录", zap.String("key", key), zap.Error(err))
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// SaveLedgerSnapshot 保存账本快照（覆盖写）
func (c *Client) SaveLedgerSnapshot(ctx context.Context, snap *trading.LedgerSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("序列化账本快照失败: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key(ledgerSnapshotKey), data, 0).Err(); err != nil {
		return fmt.Errorf("保存账本快照失败: %w", err)
	}
	return nil
}

// LoadLedgerSnapshot 读取账本快照，不存在返回 nil
func (c *Client) LoadLedgerSnapshot(ctx context.Context) (*trading.LedgerSnapshot, error) {
	data, err := c.rdb.Get(ctx, c.key(ledgerSnapshotKey)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取账本快照失败: %w", err)
	}
	var snap trading.LedgerSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("解析账本快照失败: %w", err)
	}
	return &snap, nil
}

// PushTradeRecord 追加成交流水
func (c *Client) PushTradeRecord(ctx context.Context, record *models.TradeRecord) error {
	return c.pushBounded(ctx, c.key(tradeHistoryKey), record, maxTradeRecords)
}

// GetTradeHistory 读取最近的成交流水，表头为最新
func (c *Client) GetTradeHistory(ctx context.Context, limit int64) ([]models.TradeRecord, error) {
	return listRange[models.TradeRecord](ctx, c, c.key(tradeHistoryKey), limit)
}

// PushEquitySnapshot 追加权益快照
func (c *Client) PushEquitySnapshot(ctx context.Context, snap *models.EquitySnapshot) error {
	return c.pushBounded(ctx, c.key(equityHistoryKey), snap, maxEquitySnapshots)
}

// GetEquityHistory 读取最近的权益快照
func (c *Client) GetEquityHistory(ctx context.Context, limit int64) ([]models.EquitySnapshot, error) {
	return listRange[models.EquitySnapshot](ctx, c, c.key(equityHistoryKey), limit)
}

// PushDecisionRecord 追加决策记录（信号 + 执行结果的摘要）
func (c *Client) PushDecisionRecord(ctx context.Context, record interface{}) error {
	return c.pushBounded(ctx, c.key(decisionHistoryKey), record, maxDecisionRecords)
}

// GetDecisionHistory 读取最近的决策记录原始 JSON
func (c *Client) GetDecisionHistory(ctx context.Context, limit int64) ([]json.RawMessage, error) {
	return listRange[json.RawMessage](ctx, c, c.key(decisionHistoryKey), limit)
}
