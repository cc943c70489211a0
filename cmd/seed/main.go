// seed 是本地开发用的命令行工具：写入一批带情绪的演示用户，
// 并可以为任意用户签发一个调试 JWT。
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"moodlink/internal/auth"
	"moodlink/internal/config"
	"moodlink/internal/models"
	"moodlink/internal/storage"

	"gorm.io/gorm"
)

type demoUser struct {
	Username    string
	DisplayName string
	Mood        string
	Bio         string
}

var demoUsers = []demoUser{
	{Username: "luna", DisplayName: "Luna", Mood: "calm", Bio: "夜猫子，喜欢安静的对话。"},
	{Username: "finn", DisplayName: "Finn", Mood: "excited", Bio: "永远在找下一件新鲜事。"},
	{Username: "maya", DisplayName: "Maya", Mood: "calm", Bio: "茶和书。"},
	{Username: "theo", DisplayName: "Theo", Mood: "stressed", Bio: "deadline 驱动型人格。"},
	{Username: "iris", DisplayName: "Iris", Mood: "happy", Bio: "分享今天的小确幸。"},
	{Username: "noah", DisplayName: "Noah", Mood: "", Bio: "还没想好今天的心情。"},
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("使用方法:")
		fmt.Println("  ./seed users - 写入演示用户（已存在的跳过）")
		fmt.Println("  ./seed token <username> - 为用户签发一个调试 JWT")
		os.Exit(1)
	}

	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("无法加载配置: %v", err)
	}

	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("无法初始化数据库: %v", err)
	}
	if err := storage.AutoMigrateTables(db); err != nil {
		log.Fatalf("无法迁移数据库表: %v", err)
	}

	userRepo := storage.NewGormUserRepository(db)
	ctx := context.Background()

	switch os.Args[1] {
	case "users":
		seedUsers(ctx, userRepo)

	case "token":
		if len(os.Args) < 3 {
			log.Fatalf("需要指定用户名")
		}
		issueToken(ctx, userRepo, os.Args[2], cfg.Auth)

	default:
		log.Fatalf("未知命令: %s", os.Args[1])
	}
}

func seedUsers(ctx context.Context, userRepo storage.UserRepository) {
	created := 0
	for _, du := range demoUsers {
		if _, err := userRepo.GetByUsername(ctx, du.Username); err == nil {
			fmt.Printf("用户 %s 已存在，跳过。\n", du.Username)
			continue
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Fatalf("查询用户 %s 失败: %v", du.Username, err)
		}

		// 演示环境统一口令
		hash, err := auth.HashPassword("password123")
		if err != nil {
			log.Fatalf("生成密码哈希失败: %v", err)
		}

		user := &models.User{
			Username:     du.Username,
			PasswordHash: hash,
			DisplayName:  du.DisplayName,
			Bio:          du.Bio,
		}
		if du.Mood != "" {
			mood := du.Mood
			user.CurrentMood = &mood
		}

		if err := userRepo.Create(ctx, user); err != nil {
			log.Fatalf("创建用户 %s 失败: %v", du.Username, err)
		}
		fmt.Printf("已创建用户 %s (ID: %d, mood: %q)\n", du.Username, user.ID, du.Mood)
		created++
	}
	fmt.Printf("完成：新建 %d 个用户。\n", created)
}

func issueToken(ctx context.Context, userRepo storage.UserRepository, username string, authCfg config.AuthConfig) {
	user, err := userRepo.GetByUsername(ctx, username)
	if err != nil {
		log.Fatalf("查询用户 %s 失败: %v", username, err)
	}

	token, err := auth.GenerateToken(user.ID, user.Username, authCfg)
	if err != nil {
		log.Fatalf("签发 JWT 失败: %v", err)
	}
	fmt.Println(token)
}
