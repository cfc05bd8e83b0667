package persistence

import (
	"StarLedger/internal/ledger"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB key layout:
//
//	block_<height, zero padded>  => block JSON (ordered scan)
//	hash_<hash>                  => height
//	height_latest                => tip height
const (
	blockKeyPrefix = "block_"
	hashKeyPrefix  = "hash_"
	latestKey      = "height_latest"
)

// LevelStore is an embedded BlockStore backed by LevelDB.
type LevelStore struct {
	db  *leveldb.DB
	log zerolog.Logger
}

// OpenLevelStore opens (or creates) a LevelDB database at path.
func OpenLevelStore(path string, logger zerolog.Logger) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	logger.Info().Str("path", path).Msg("leveldb store opened")
	return &LevelStore{db: db, log: logger}, nil
}

func blockKey(height int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", blockKeyPrefix, height))
}

// LoadBlocks returns every stored block in height order.
func (s *LevelStore) LoadBlocks(ctx context.Context) ([]ledger.Block, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(blockKeyPrefix)), nil)
	defer iter.Release()

	var blocks []ledger.Block
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var b ledger.Block
		if err := json.Unmarshal(iter.Value(), &b); err != nil {
			return nil, fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		blocks = append(blocks, b)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("scan blocks: %w", err)
	}
	return blocks, nil
}

// AppendBlock writes the block, its hash index and the new tip in one
// synced batch. A block already stored at the same height is an error.
func (s *LevelStore) AppendBlock(ctx context.Context, b ledger.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := blockKey(b.Height)
	exists, err := s.db.Has(key, nil)
	if err != nil {
		return fmt.Errorf("check height %d: %w", b.Height, err)
	}
	if exists {
		return fmt.Errorf("block at height %d already stored", b.Height)
	}

	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode block %d: %w", b.Height, err)
	}

	batch := new(leveldb.Batch)
	batch.Put(key, data)
	batch.Put([]byte(hashKeyPrefix+b.Hash), []byte(strconv.FormatInt(b.Height, 10)))
	batch.Put([]byte(latestKey), []byte(strconv.FormatInt(b.Height, 10)))

	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("write block %d: %w", b.Height, err)
	}
	return nil
}

// LatestHeight returns the stored tip height, or -1 when empty.
func (s *LevelStore) LatestHeight() (int64, error) {
	v, err := s.db.Get([]byte(latestKey), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return -1, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(v), 10, 64)
}

// HeightByHash resolves a block hash through the secondary index.
func (s *LevelStore) HeightByHash(hash string) (int64, bool, error) {
	v, err := s.db.Get([]byte(hashKeyPrefix+hash), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	h, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil {
		return 0, false, err
	}
	return h, true, nil
}

// Close closes the database.
func (s *LevelStore) Close() error {
	s.log.Info().Msg("leveldb store closed")
	return s.db.Close()
}
