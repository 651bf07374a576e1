package main

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/dkeye/orderrelay/internal/adapters/relay"
	"github.com/dkeye/orderrelay/internal/core"
	"github.com/dkeye/orderrelay/internal/domain"
)

func publish(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 3 {
		return errors.New("publish needs <roomType> <roomId> <envelope-json>")
	}
	key, err := domain.NewRoomKey(cmd.Args().Get(0), cmd.Args().Get(1))
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	client := newRedis(cfg.Redis)
	defer client.Close()

	receivers, err := relay.Publish(ctx, client, cfg.Redis.ChannelPrefix, key, core.Frame(cmd.Args().Get(2)))
	if err != nil {
		return err
	}
	log.Info().Str("room", key.String()).Int64("relays", receivers).Msg("published")
	return nil
}
