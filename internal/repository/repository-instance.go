package repository

import "access_service/internal/database/mongo"

type Repositories struct {
	GrantRepository    *GrantRepository
	RequestRepository  *RequestRepository
	TemplateRepository *TemplateRepository
	AuditRepository    *AuditRepository
	RedisRepository    *RedisRepo
}

var Repositories_instance = &Repositories{
	GrantRepository:    NewGrantRepository(mongo.Mongo_Database),
	RequestRepository:  NewRequestRepository(mongo.Mongo_Database),
	TemplateRepository: NewTemplateRepository(mongo.Mongo_Database),
	AuditRepository:    NewAuditRepository(mongo.Mongo_Database),
	RedisRepository:    NewRedisRepo(),
}
