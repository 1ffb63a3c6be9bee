package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/voicetory/apiserver/types"
)

const (
	productKeyPrefix      = "product:"
	productIndexKeyPrefix = "products:"
	productOwnersKey      = "products:owners"
	salesKeyPrefix        = "sales:"
	salesOwnersKey        = "sales:owners"
)

var upsertIncrementScript = redis.NewScript(`
local key = KEYS[1]
local index = KEYS[2]
local owners = KEYS[3]
local delta = tonumber(ARGV[1])
local now = ARGV[2]

local current = tonumber(redis.call('HGET', key, 'quantity') or '0')
if current + delta > tonumber(ARGV[5]) then
	return redis.error_reply('QUANTITY_OVERFLOW')
end

if redis.call('HSETNX', key, 'created_at', now) == 1 then
	redis.call('HSET', key, 'owner_id', ARGV[3], 'name', ARGV[4])
end
redis.call('HINCRBY', key, 'quantity', delta)
redis.call('HSET', key, 'updated_at', now)
for i = 6, #ARGV, 2 do
	redis.call('HSET', key, ARGV[i], ARGV[i + 1])
end
redis.call('SADD', index, ARGV[4])
redis.call('SADD', owners, ARGV[3])

return redis.call('HGETALL', key)
`)

var conditionalDecrementScript = redis.NewScript(`
local key = KEYS[1]
local index = KEYS[2]
local quantity = tonumber(ARGV[1])

local current = redis.call('HGET', key, 'quantity')
if not current then
	return {-1}
end

current = tonumber(current)
if current < quantity then
	return {0, current}
end

local remaining = redis.call('HINCRBY', key, 'quantity', -quantity)
redis.call('HSET', key, 'updated_at', ARGV[2])
local fields = redis.call('HGETALL', key)
if ARGV[3] == '1' and remaining == 0 then
	redis.call('DEL', key)
	redis.call('SREM', index, ARGV[4])
end

return {1, remaining, fields}
`)

var deleteProductScript = redis.NewScript(`
local removed = redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], ARGV[1])
return removed
`)

// RedisProductStore keeps products as hashes and sales as JSON lists.
// Each mutation is a single Lua script, which Redis runs atomically.
type RedisProductStore struct {
	client *redis.Client
}

func NewRedisProductStore(client *redis.Client) *RedisProductStore {
	return &RedisProductStore{client: client}
}

func productKey(key ProductKey) string {
	return productKeyPrefix + key.Owner + ":" + key.Name
}

func productIndexKey(owner string) string {
	return productIndexKeyPrefix + owner
}

func (r *RedisProductStore) Find(ctx context.Context, key ProductKey) (types.Product, error) {
	fields, err := r.client.HGetAll(ctx, productKey(key)).Result()
	if err != nil {
		return types.Product{}, unavailable(err)
	}
	if len(fields) == 0 {
		return types.Product{}, ErrNotFound
	}
	return productFromHash(fields)
}

func (r *RedisProductStore) UpsertIncrement(ctx context.Context, key ProductKey, delta int, fin *types.Financials, now time.Time) (types.Product, error) {
	if delta < 0 || delta > MaxQuantity {
		return types.Product{}, ErrQuantityOverflow
	}
	args := []any{delta, now.UTC().Format(time.RFC3339Nano), key.Owner, key.Name, MaxQuantity}
	if fin != nil {
		args = appendFloatField(args, "cost_price", fin.CostPrice)
		args = appendFloatField(args, "selling_price", fin.SellingPrice)
		args = appendFloatField(args, "total_value", fin.TotalValue)
		args = appendFloatField(args, "profit", fin.Profit)
	}

	keys := []string{productKey(key), productIndexKey(key.Owner), productOwnersKey}
	values, err := upsertIncrementScript.Run(ctx, r.client, keys, args...).Slice()
	if err != nil {
		if strings.Contains(err.Error(), "QUANTITY_OVERFLOW") {
			return types.Product{}, ErrQuantityOverflow
		}
		return types.Product{}, unavailable(err)
	}
	fields, err := flatHash(values)
	if err != nil {
		return types.Product{}, unavailable(err)
	}
	return productFromHash(fields)
}

func (r *RedisProductStore) ConditionalDecrement(ctx context.Context, key ProductKey, qty int, removeAtZero bool, now time.Time) (types.Product, error) {
	remove := "0"
	if removeAtZero {
		remove = "1"
	}
	keys := []string{productKey(key), productIndexKey(key.Owner)}
	result, err := conditionalDecrementScript.Run(ctx, r.client, keys, qty, now.UTC().Format(time.RFC3339Nano), remove, key.Name).Slice()
	if err != nil {
		return types.Product{}, unavailable(err)
	}
	if len(result) == 0 {
		return types.Product{}, unavailable(errors.New("empty script reply"))
	}

	status, _ := result[0].(int64)
	switch status {
	case -1:
		return types.Product{}, ErrNotFound
	case 0:
		available := int64(0)
		if len(result) > 1 {
			available, _ = result[1].(int64)
		}
		return types.Product{}, &InsufficientError{Available: int(available)}
	}

	if len(result) < 3 {
		return types.Product{}, unavailable(errors.New("short script reply"))
	}
	values, ok := result[2].([]any)
	if !ok {
		return types.Product{}, unavailable(errors.New("unexpected script reply"))
	}
	fields, err := flatHash(values)
	if err != nil {
		return types.Product{}, unavailable(err)
	}
	return productFromHash(fields)
}

func (r *RedisProductStore) Delete(ctx context.Context, key ProductKey) error {
	keys := []string{productKey(key), productIndexKey(key.Owner)}
	removed, err := deleteProductScript.Run(ctx, r.client, keys, key.Name).Int()
	if err != nil {
		return unavailable(err)
	}
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RedisProductStore) List(ctx context.Context, owner *string) ([]types.Product, error) {
	var owners []string
	if owner != nil {
		owners = []string{*owner}
	} else {
		var err error
		owners, err = r.client.SMembers(ctx, productOwnersKey).Result()
		if err != nil {
			return nil, unavailable(err)
		}
	}

	products := make([]types.Product, 0)
	for _, o := range owners {
		names, err := r.client.SMembers(ctx, productIndexKey(o)).Result()
		if err != nil {
			return nil, unavailable(err)
		}
		if len(names) == 0 {
			continue
		}

		pipe := r.client.Pipeline()
		cmds := make([]*redis.MapStringStringCmd, 0, len(names))
		for _, name := range names {
			cmds = append(cmds, pipe.HGetAll(ctx, productKey(ProductKey{Owner: o, Name: name})))
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, unavailable(err)
		}
		for _, cmd := range cmds {
			fields := cmd.Val()
			if len(fields) == 0 {
				continue
			}
			product, err := productFromHash(fields)
			if err != nil {
				return nil, unavailable(err)
			}
			products = append(products, product)
		}
	}
	sortProducts(products)
	return products, nil
}

func (r *RedisProductStore) AppendSale(ctx context.Context, sale types.Sale) error {
	payload, err := json.Marshal(sale)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, salesKeyPrefix+sale.OwnerID, payload)
	pipe.SAdd(ctx, salesOwnersKey, sale.OwnerID)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *RedisProductStore) ListSales(ctx context.Context, owner *string) ([]types.Sale, error) {
	var owners []string
	if owner != nil {
		owners = []string{*owner}
	} else {
		var err error
		owners, err = r.client.SMembers(ctx, salesOwnersKey).Result()
		if err != nil {
			return nil, unavailable(err)
		}
	}

	sales := make([]types.Sale, 0)
	for _, o := range owners {
		items, err := r.client.LRange(ctx, salesKeyPrefix+o, 0, -1).Result()
		if err != nil {
			return nil, unavailable(err)
		}
		for _, item := range items {
			var sale types.Sale
			if err := json.Unmarshal([]byte(item), &sale); err != nil {
				return nil, unavailable(err)
			}
			sales = append(sales, sale)
		}
	}
	return sales, nil
}

func (r *RedisProductStore) Ping(ctx context.Context) error {
	return unavailable(r.client.Ping(ctx).Err())
}

func appendFloatField(args []any, field string, value *float64) []any {
	if value == nil {
		return args
	}
	return append(args, field, strconv.FormatFloat(*value, 'f', -1, 64))
}

func flatHash(values []any) (map[string]string, error) {
	if len(values)%2 != 0 {
		return nil, errors.New("odd hash reply")
	}
	fields := make(map[string]string, len(values)/2)
	for i := 0; i < len(values); i += 2 {
		k, ok := values[i].(string)
		if !ok {
			return nil, fmt.Errorf("unexpected hash field %T", values[i])
		}
		v, ok := values[i+1].(string)
		if !ok {
			return nil, fmt.Errorf("unexpected hash value %T", values[i+1])
		}
		fields[k] = v
	}
	return fields, nil
}

func productFromHash(fields map[string]string) (types.Product, error) {
	quantity, err := strconv.Atoi(fields["quantity"])
	if err != nil {
		return types.Product{}, fmt.Errorf("invalid quantity %q: %w", fields["quantity"], err)
	}
	product := types.Product{
		OwnerID:  fields["owner_id"],
		Name:     fields["name"],
		Quantity: quantity,
	}
	if product.CreatedAt, err = parseHashTime(fields["created_at"]); err != nil {
		return types.Product{}, err
	}
	if product.UpdatedAt, err = parseHashTime(fields["updated_at"]); err != nil {
		return types.Product{}, err
	}
	for field, dst := range map[string]**float64{
		"cost_price":    &product.CostPrice,
		"selling_price": &product.SellingPrice,
		"total_value":   &product.TotalValue,
		"profit":        &product.Profit,
	} {
		raw, ok := fields[field]
		if !ok {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return types.Product{}, fmt.Errorf("invalid %s %q: %w", field, raw, err)
		}
		*dst = float64Ptr(value)
	}
	return product, nil
}

func parseHashTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", raw, err)
	}
	return t, nil
}
