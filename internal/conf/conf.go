package conf

import (
	"encoding/json"
	"time"
)

// Duration 支持 "30s" / "5m" 字符串写法的配置时长
type Duration time.Duration

// UnmarshalJSON 实现 json.Unmarshaler
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}
	// 兼容纳秒数值写法
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*d = Duration(n)
	return nil
}

// AsDuration 转换为 time.Duration
func (d Duration) AsDuration() time.Duration {
	return time.Duration(d)
}

// Bootstrap 启动配置
type Bootstrap struct {
	Server      *Server      `json:"server"`
	Data        *Data        `json:"data"`
	Vendor      *Vendor      `json:"vendor"`
	Scheduler   *Scheduler   `json:"scheduler"`
	Fulfillment *Fulfillment `json:"fulfillment"`
}

// Server 服务端配置
type Server struct {
	Http *HTTP `json:"http"`
}

// HTTP HTTP 服务配置（metrics/健康检查）
type HTTP struct {
	Network string   `json:"network"`
	Addr    string   `json:"addr"`
	Timeout Duration `json:"timeout"`
}

// Data 数据层配置
type Data struct {
	Database *Database `json:"database"`
	Redis    *Redis    `json:"redis"`
	Rocketmq *Rocketmq `json:"rocketmq"`
}

// Database 数据库配置
type Database struct {
	Driver string `json:"driver"`
	Source string `json:"source"`
}

// Redis Redis 配置
type Redis struct {
	Addr         string   `json:"addr"`
	Password     string   `json:"password"`
	Db           int      `json:"db"`
	ReadTimeout  Duration `json:"read_timeout"`
	WriteTimeout Duration `json:"write_timeout"`
}

// Rocketmq RocketMQ 配置（充值入账事件消费）
type Rocketmq struct {
	Enabled     bool     `json:"enabled"`
	NameServers []string `json:"name_servers"`
	GroupName   string   `json:"group_name"`
	Topic       string   `json:"topic"`
	RetryTimes  int      `json:"retry_times"`
}

// Vendor 供应商网关默认配置
type Vendor struct {
	ConnectTimeout Duration `json:"connect_timeout"`
	RequestTimeout Duration `json:"request_timeout"`
	MaxRetries     int      `json:"max_retries"`
}

// Scheduler 对账调度配置
type Scheduler struct {
	HoldCleanupInterval  Duration `json:"hold_cleanup_interval"`
	OrderPollInterval    Duration `json:"order_poll_interval"`
	RefillPollInterval   Duration `json:"refill_poll_interval"`
	LockExpiry           Duration `json:"lock_expiry"`
	OrderPollBatchLimit  int      `json:"order_poll_batch_limit"`
	RefillPollBatchLimit int      `json:"refill_poll_batch_limit"`
}

// Fulfillment 业务配置
type Fulfillment struct {
	HoldTTL Duration `json:"hold_ttl"`
}
