package meta

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gomodule/redigo/redis"
)

const (
	defaultRedisPort = 6379

	redisPrefix  = "redis://"
	redissPrefix = "rediss://"
)

var (
	defaultDialConnectTimeout = redis.DialConnectTimeout(10 * time.Second)
	defaultDialReadTimeout    = redis.DialReadTimeout(10 * time.Second)
)

//RedisPool is a redigo pool wrapper which is shared between meta storage and coordination locks
type RedisPool struct {
	pool *redis.Pool
}

func (rp *RedisPool) Get() redis.Conn {
	return rp.pool.Get()
}

//GetPool returns underlying redigo pool (is used by redsync)
func (rp *RedisPool) GetPool() *redis.Pool {
	return rp.pool
}

func (rp *RedisPool) Close() error {
	return rp.pool.Close()
}

//RedisPoolFactory creates RedisPool from URLs (redis://, rediss://) or from host, port, password
type RedisPoolFactory struct {
	host     string
	port     int
	password string
}

//NewRedisPoolFactory returns filled RedisPoolFactory and removes quotes in host
func NewRedisPoolFactory(host string, port int, password string) *RedisPoolFactory {
	host = strings.Trim(host, `"'`)
	return &RedisPoolFactory{host: host, port: port, password: password}
}

//Create returns configured RedisPool or err if ping failed
func (rpf *RedisPoolFactory) Create() (*RedisPool, error) {
	options := []redis.DialOption{defaultDialConnectTimeout, defaultDialReadTimeout}

	var dialFunc func() (redis.Conn, error)
	if rpf.isURL() {
		options = append(options, redis.DialTLSSkipVerify(strings.HasPrefix(rpf.host, redisPrefix)))
		dialFunc = func() (redis.Conn, error) {
			return redis.DialURL(rpf.host, options...)
		}
	} else {
		if rpf.password != "" {
			options = append(options, redis.DialPassword(rpf.password))
		}
		address := rpf.host + ":" + strconv.Itoa(rpf.port)
		dialFunc = func() (redis.Conn, error) {
			return redis.Dial("tcp", address, options...)
		}
	}

	poolToRedis := &redis.Pool{
		MaxIdle:     100,
		MaxActive:   600,
		IdleTimeout: 240 * time.Second,

		Wait: false,
		Dial: dialFunc,
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			_, err := c.Do("PING")
			return err
		},
	}

	//test connection
	connection := poolToRedis.Get()
	defer connection.Close()

	if _, err := redis.String(connection.Do("PING")); err != nil {
		poolToRedis.Close()
		return nil, fmt.Errorf("testing Redis connection: %v", err)
	}

	return &RedisPool{pool: poolToRedis}, nil
}

//CheckAndSetDefaultPort puts defaultRedisPort if port isn't set (or takes it from host:port)
func (rpf *RedisPoolFactory) CheckAndSetDefaultPort() (int, bool) {
	if rpf.port != 0 || rpf.isURL() {
		return 0, false
	}

	parts := strings.Split(rpf.host, ":")
	if len(parts) == 2 {
		if port, err := strconv.Atoi(parts[1]); err == nil {
			rpf.host = parts[0]
			rpf.port = port
			return rpf.port, false
		}
	}

	rpf.port = defaultRedisPort
	return rpf.port, true
}

//Details returns host:port or URL
func (rpf *RedisPoolFactory) Details() string {
	if rpf.isURL() {
		return rpf.host
	}
	return fmt.Sprintf("%s:%d", rpf.host, rpf.port)
}

func (rpf *RedisPoolFactory) isURL() bool {
	return strings.HasPrefix(rpf.host, redisPrefix) || strings.HasPrefix(rpf.host, redissPrefix)
}
