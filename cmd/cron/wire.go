//go:build wireinject
// +build wireinject

package main

import (
	"fulfillment-service/internal/biz"
	"fulfillment-service/internal/conf"
	"fulfillment-service/internal/data"
	"fulfillment-service/internal/gateway"
	"fulfillment-service/internal/scheduler"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp 初始化应用
func wireApp(*conf.Bootstrap, log.Logger) (*CronApp, func(), error) {
	panic(wire.Build(
		data.ProviderSet,
		biz.ProviderSet,
		gateway.ProviderSet,
		scheduler.ProviderSet,
		wire.Struct(new(CronApp), "*"),
	))
}
