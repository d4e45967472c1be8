package cmd

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"
)

var (
	eventsGroup string
	eventsLimit int
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "查看 Kafka 事件流",
	Long:  `从 KAFKA_TOPIC 读取并打印服务发布的事件（新私信、收听记录、在线状态），Ctrl+C 退出。仅支持 kafka。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := loadConfig()
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is not set")
		}
		fmt.Printf("Kafka: %v, Topic: %s\n", c.KafkaBrokers, c.KafkaTopic)

		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.KafkaBrokers,
			Topic:       c.KafkaTopic,
			GroupID:     eventsGroup,
			StartOffset: kafka.LastOffset,
			MaxWait:     time.Second,
		})
		defer reader.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		for n := 0; eventsLimit <= 0 || n < eventsLimit; n++ {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			fmt.Printf("%s p%d@%d %s %s\n",
				msg.Time.Format(time.RFC3339), msg.Partition, msg.Offset, msg.Key, msg.Value)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().StringVarP(&eventsGroup, "group", "g", "", "消费组；为空时不提交 offset")
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 0, "读取条数后退出，0 表示不限")
}
