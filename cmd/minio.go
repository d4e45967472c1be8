package cmd

import (
	"context"
	"fmt"
	"time"

	"Tunehub/storage"

	"github.com/spf13/cobra"
)

var (
	minioPrefix    string
	minioStats     bool
	minioRecursive bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO存储桶管理",
	Long:  `查看资源存储桶中的歌曲音频与封面图片，支持按前缀列出文件与查看统计信息。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := loadConfig()
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", c.MinioEndpoint, c.MinioBucket)

		store, err := storage.NewAssetStore(c)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		if minioStats {
			stats, err := store.Stats(ctx)
			if err != nil {
				return fmt.Errorf("获取存储桶统计信息失败: %w", err)
			}
			fmt.Printf("\n文件总数: %d\n总大小: %s\n", stats.TotalObjects, storage.FormatSize(stats.TotalSize))
			if !stats.LastModified.IsZero() {
				fmt.Printf("最后修改: %s\n", stats.LastModified.Format(time.RFC3339))
			}
			for kind, size := range stats.ByKind {
				fmt.Printf("  %-6s %s\n", kind, storage.FormatSize(size))
			}
			return nil
		}

		objects, err := store.ListObjects(ctx, minioPrefix, minioRecursive)
		if err != nil {
			return fmt.Errorf("列出文件失败: %w", err)
		}
		fmt.Printf("\n前缀 %q 下共 %d 个对象:\n", minioPrefix, len(objects))
		for _, obj := range objects {
			fmt.Printf("  %-60s %10s  %s\n", obj.Key, storage.FormatSize(obj.Size), obj.LastModified.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "按前缀过滤文件")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "显示存储桶统计信息")
	minioCmd.Flags().BoolVarP(&minioRecursive, "recursive", "r", false, "递归列出")

	minioCmd.Example = `  # 列出所有文件
  tunehub minio -r

  # 列出歌曲音频
  tunehub minio -r -p "songs/audio/"

  # 显示存储桶统计信息
  tunehub minio -s`
}
