package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/target/domain-enricher/config"
	"github.com/target/domain-enricher/internal/core"
	"github.com/target/domain-enricher/internal/data"
	"github.com/target/domain-enricher/internal/domain/model"
	"github.com/target/domain-enricher/internal/enrich/certificates"
	"github.com/target/domain-enricher/internal/enrich/company"
	"github.com/target/domain-enricher/internal/enrich/ipinfo"
	"github.com/target/domain-enricher/internal/enrich/links"
	"github.com/target/domain-enricher/internal/enrich/primary"
	"github.com/target/domain-enricher/internal/enrich/resolver"
)

// EnricherDeps groups what stage enrichers are built from.
type EnricherDeps struct {
	Config      config.EnrichersConfig
	Cache       config.CacheConfig
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// BuildEnricher constructs the enricher for one stage.
//
//nolint:ireturn // each stage has its own concrete type.
func BuildEnricher(stage model.Stage, deps EnricherDeps) (core.Enricher, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	switch stage {
	case model.StagePrimary:
		return buildPrimaryEnricher(deps)
	case model.StageCertificates:
		return certificates.New(certificates.Options{
			ProbeTimeout:     deps.Config.TLS.ProbeTimeout,
			HandshakeTimeout: deps.Config.TLS.HandshakeTimeout,
			Logger:           deps.Logger,
		}), nil
	case model.StageLinks:
		return links.New(links.Options{
			Timeout:      deps.Config.Links.Timeout,
			MaxBodyBytes: deps.Config.Links.MaxBodyBytes,
			UserAgent:    deps.Config.Links.UserAgent,
			Logger:       deps.Logger,
		}), nil
	case model.StageCompany:
		return buildCompanyEnricher(deps)
	default:
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidStage, string(stage))
	}
}

func buildPrimaryEnricher(deps EnricherDeps) (*primary.Enricher, error) {
	dnsCfg := deps.Config.DNS
	dns := resolver.New(resolver.Options{
		Servers:      dnsCfg.Resolvers,
		QueryTimeout: dnsCfg.QueryTimeout,
		Lifetime:     dnsCfg.Lifetime,
	})

	var geo *ipinfo.GeoTable
	if path := deps.Config.GeoIP.CSVPath; path != "" {
		table, err := ipinfo.LoadGeoFile(path)
		if err != nil {
			return nil, fmt.Errorf("load geoip ranges: %w", err)
		}
		deps.Logger.Info("geoip ranges loaded", "path", path, "ranges", table.Len())
		geo = table
	}

	var shared core.CacheRepository
	if deps.RedisClient != nil {
		shared = data.NewRedisCacheRepo(deps.RedisClient, deps.Cache.KeyPrefix)
	}
	annotator, err := ipinfo.NewAnnotator(ipinfo.AnnotatorOptions{
		ASN:        ipinfo.NewCymruSource(dns),
		Geo:        geo,
		Shared:     shared,
		SharedTTL:  deps.Cache.ASNTTL,
		ASNEntries: deps.Cache.ASNEntries,
		GeoEntries: deps.Cache.GeoEntries,
		Logger:     deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create ip annotator: %w", err)
	}

	var subdomains primary.SubdomainSource
	if sf := deps.Config.Subfinder; sf.Enabled {
		subdomains = primary.NewSubfinderSource(primary.SubfinderOptions{
			Timeout:        sf.Timeout,
			Threads:        sf.Threads,
			ProviderConfig: sf.ProviderConfig,
		})
	}

	return primary.New(primary.Options{
		Resolver:    dns,
		Annotator:   annotator,
		Subdomains:  subdomains,
		Concurrency: dnsCfg.Concurrency,
		Logger:      deps.Logger,
	}), nil
}

func buildCompanyEnricher(deps EnricherDeps) (*company.Enricher, error) {
	reg := deps.Config.Registry

	var oauth *clientcredentials.Config
	if reg.OAuthEnabled() {
		oauth = &clientcredentials.Config{
			ClientID:     reg.OAuthClientID,
			ClientSecret: reg.OAuthClientSecret,
			TokenURL:     reg.OAuthTokenURL,
			Scopes:       reg.OAuthScopes,
		}
	}

	client, err := company.NewRegistryClient(company.ClientOptions{
		BaseURL:       reg.BaseURL,
		HomePath:      reg.HomePath,
		SearchPath:    reg.SearchPath,
		PortletID:     reg.PortletID,
		ResourceID:    reg.ResourceID,
		UserAgent:     reg.UserAgent,
		HomeTimeout:   reg.HomeTimeout,
		SearchTimeout: reg.SearchTimeout,
		MinInterval:   reg.MinInterval,
		CoolDown:      reg.CoolDown,
		OAuth:         oauth,
		Logger:        deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create registry client: %w", err)
	}

	mapper, err := company.NewMapper(company.FieldExpressions{
		Results:   reg.ResultsExpr,
		NIF:       reg.NIFExpr,
		Name:      reg.NameExpr,
		Status:    reg.StatusExpr,
		Street:    reg.StreetExpr,
		City:      reg.CityExpr,
		Province:  reg.ProvinceExpr,
		CNAECode:  reg.CNAECodeExpr,
		CNAEDesc:  reg.CNAEDescExpr,
		LegalForm: reg.LegalFormExpr,
		Registry:  reg.RegistryExpr,
		EUID:      reg.EUIDExpr,
	})
	if err != nil {
		return nil, fmt.Errorf("compile registry field expressions: %w", err)
	}
	return company.New(client, mapper, deps.Logger), nil
}
