package stores

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/params"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

// Databases resolves ${database:ID} to a connection descriptor built from a
// database credential: {"driver", "dsn", "host", "port", "database"}.
func Databases(secrets Secrets) params.Store {
	return params.StoreFunc(func(ctx context.Context, workspaceID uuid.UUID, ref params.Reference) (params.Value, error) {
		credential, data, err := secrets.Open(ctx, workspaceID, ref.ID)
		if err != nil {
			return params.Value{}, err
		}
		conn, err := Connection(credential, data)
		if err != nil {
			return params.Value{}, err
		}
		return params.Value{Data: conn, Secret: true}, nil
	})
}

// Connection renders the connection descriptor for a database credential.
func Connection(credential *models.Credential, data *models.CredentialData) (map[string]interface{}, error) {
	var (
		dsn string
		err error
	)
	switch credential.Type {
	case models.CredentialTypePostgres:
		dsn = postgresDSN(data)
	case models.CredentialTypeMySQL:
		dsn = mysqlDSN(data)
	case models.CredentialTypeMongoDB:
		dsn, err = mongoURI(data)
	default:
		return nil, fmt.Errorf("credential %s is not a database credential", credential.ID)
	}
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"driver":   credential.Type,
		"dsn":      dsn,
		"host":     data.Host,
		"port":     data.Port,
		"database": data.Database,
	}, nil
}

func postgresDSN(data *models.CredentialData) string {
	if data.ConnectionString != "" {
		return data.ConnectionString
	}
	port := data.Port
	if port == 0 {
		port = 5432
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(data.Host, strconv.Itoa(port)),
		Path:   "/" + data.Database,
	}
	if data.Username != "" {
		u.User = url.UserPassword(data.Username, data.Password)
	}
	q := url.Values{}
	for k, v := range data.Options {
		q.Set(k, v)
	}
	if q.Get("sslmode") == "" {
		q.Set("sslmode", "require")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func mysqlDSN(data *models.CredentialData) string {
	if data.ConnectionString != "" {
		return data.ConnectionString
	}
	port := data.Port
	if port == 0 {
		port = 3306
	}

	cfg := mysql.NewConfig()
	cfg.User = data.Username
	cfg.Passwd = data.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(data.Host, strconv.Itoa(port))
	cfg.DBName = data.Database
	cfg.ParseTime = true
	if len(data.Options) > 0 {
		cfg.Params = make(map[string]string, len(data.Options))
		for k, v := range data.Options {
			cfg.Params[k] = v
		}
	}
	return cfg.FormatDSN()
}

func mongoURI(data *models.CredentialData) (string, error) {
	uri := data.ConnectionString
	if uri == "" {
		port := data.Port
		if port == 0 {
			port = 27017
		}
		u := url.URL{
			Scheme: "mongodb",
			Host:   net.JoinHostPort(data.Host, strconv.Itoa(port)),
			Path:   "/" + data.Database,
		}
		if data.Username != "" {
			u.User = url.UserPassword(data.Username, data.Password)
		}
		q := url.Values{}
		for k, v := range data.Options {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
		uri = u.String()
	}

	if _, err := connstring.ParseAndValidate(uri); err != nil {
		return "", fmt.Errorf("invalid mongodb connection string: %w", err)
	}
	return uri, nil
}
