package meta

import "github.com/gomodule/redigo/redis"

//beginRunScript flips entity status to running status only if it isn't running already
//KEYS: entity hash, in-flight index
//ARGV: tenant_id, run_id, status_changed_at, score, running status, last_run_at (may be empty), entity id
//returns -1 if not found, 0 if already running, 1 if started
var beginRunScript = redis.NewScript(2, `
if redis.call('hget', KEYS[1], 'tenant_id') ~= ARGV[1] then
  return -1
end
if redis.call('hget', KEYS[1], 'status') == ARGV[5] then
  return 0
end
redis.call('hmset', KEYS[1], 'status', ARGV[5], 'run_id', ARGV[2], 'status_changed_at', ARGV[3])
if ARGV[6] ~= '' then
  redis.call('hset', KEYS[1], 'last_run_at', ARGV[6])
end
redis.call('zadd', KEYS[2], ARGV[4], ARGV[7])
return 1`)

//finishRunScript sets terminal status only if entity is still running with the same run_id
//KEYS: entity hash, in-flight index
//ARGV: tenant_id, run_id, terminal status, status_changed_at, running status, entity id
//returns 1 if the caller won, 0 otherwise
var finishRunScript = redis.NewScript(2, `
if redis.call('hget', KEYS[1], 'tenant_id') ~= ARGV[1] then
  return 0
end
if redis.call('hget', KEYS[1], 'status') ~= ARGV[5] or redis.call('hget', KEYS[1], 'run_id') ~= ARGV[2] then
  return 0
end
redis.call('hmset', KEYS[1], 'status', ARGV[3], 'run_id', '', 'status_changed_at', ARGV[4])
redis.call('zrem', KEYS[2], ARGV[6])
return 1`)

//deleteEntityScript removes entity hash if it belongs to the tenant and isn't running
//KEYS: entity hash
//ARGV: tenant_id, running status (may be empty)
//returns -1 if not found, 0 if running, 1 if deleted
var deleteEntityScript = redis.NewScript(1, `
if redis.call('hget', KEYS[1], 'tenant_id') ~= ARGV[1] then
  return -1
end
if ARGV[2] ~= '' and redis.call('hget', KEYS[1], 'status') == ARGV[2] then
  return 0
end
redis.call('del', KEYS[1])
return 1`)

//setFieldScript sets one hash field if entity belongs to the tenant
//KEYS: entity hash
//ARGV: tenant_id, field, value
//returns -1 if not found, 1 if updated
var setFieldScript = redis.NewScript(1, `
if redis.call('hget', KEYS[1], 'tenant_id') ~= ARGV[1] then
  return -1
end
redis.call('hset', KEYS[1], ARGV[2], ARGV[3])
return 1`)
