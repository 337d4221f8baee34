// seed_demo.go creates a demo rubric, project, lots and evaluations through the
// comparador API from a YAML fixture.
//
// Usage:
//
//	go run scripts/seed_demo.go -fixture internal/fixture/testdata/lotes.yaml \
//	    -api http://localhost:8700 -secret $COMPARADOR_JWT_SECRET -client <uuid>
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Comparador/internal/api"
	"github.com/MikeSquared-Agency/Comparador/internal/config"
	"github.com/MikeSquared-Agency/Comparador/internal/fixture"
)

type client struct {
	base  string
	token string
	http  *http.Client
}

func (c *client) call(method, path string, body, out interface{}) error {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+"/api/v1"+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type created struct {
	ID uuid.UUID `json:"id"`
}

func main() {
	fixturePath := flag.String("fixture", "internal/fixture/testdata/lotes.yaml", "path to the YAML fixture")
	apiURL := flag.String("api", "http://localhost:8700", "comparador API base URL")
	token := flag.String("token", os.Getenv("COMPARADOR_TOKEN"), "admin bearer token")
	secret := flag.String("secret", "", "JWT secret used to mint an admin token when -token is empty")
	clientID := flag.String("client", "", "client user id that will own the demo project")
	activate := flag.Bool("activate", true, "activate the new rubric version")
	flag.Parse()

	f, err := fixture.Read(*fixturePath)
	if err != nil {
		log.Fatalf("fixture: %v", err)
	}
	owner, err := uuid.Parse(*clientID)
	if err != nil {
		log.Fatalf("-client must be a uuid: %v", err)
	}

	if *token == "" {
		if *secret == "" {
			log.Fatal("either -token or -secret is required")
		}
		auth := api.NewAuthenticator(config.AuthConfig{JWTSecret: *secret, RoleClaim: "role"})
		*token, err = auth.Issue(api.Principal{UserID: uuid.New(), Role: api.RoleAdmin}, time.Hour)
		if err != nil {
			log.Fatalf("mint token: %v", err)
		}
	}
	c := &client{base: *apiURL, token: *token, http: &http.Client{Timeout: 10 * time.Second}}

	var version created
	must(c.call("POST", "/templates", map[string]string{"name": f.Rubric.Name}, &version))
	log.Printf("template version %s", version.ID)

	criteria := make(map[string]uuid.UUID)
	factors := make(map[string]map[string]uuid.UUID)
	for _, fc := range f.Rubric.Classifications {
		var cl created
		must(c.call("POST", "/templates/"+version.ID.String()+"/classifications",
			map[string]string{"name": fc.Name, "description": fc.Description}, &cl))
		for _, fcr := range fc.Criteria {
			var cr created
			must(c.call("POST", "/classifications/"+cl.ID.String()+"/criteria", map[string]interface{}{
				"name": fcr.Name, "description": fcr.Description, "max_score": fcr.MaxScore,
			}, &cr))
			criteria[fcr.Name] = cr.ID
			factors[fcr.Name] = make(map[string]uuid.UUID)
			for _, ff := range fcr.Factors {
				var fa created
				must(c.call("POST", "/criteria/"+cr.ID.String()+"/factors", map[string]interface{}{
					"name": ff.Name, "description": ff.Description, "value": ff.Value,
				}, &fa))
				factors[fcr.Name][ff.Name] = fa.ID
			}
		}
	}
	if *activate {
		must(c.call("POST", "/templates/"+version.ID.String()+"/activate", nil, nil))
	}

	var project created
	must(c.call("POST", "/projects", map[string]interface{}{
		"name":                "Proyecto de prueba",
		"description":         "Comparacion de lotes generada por seed_demo",
		"client_id":           owner,
		"template_version_id": version.ID,
	}, &project))
	log.Printf("project %s", project.ID)

	base := "/projects/" + project.ID.String()
	for _, fl := range f.Lots {
		var lot created
		must(c.call("POST", base+"/lots", map[string]string{
			"name": fl.Name, "location": fl.Location, "description": fl.Description,
		}, &lot))
		for critName, factorName := range fl.Selections {
			factorID, ok := factors[critName][factorName]
			if !ok {
				log.Fatalf("lot %q: no factor %q for criterion %q", fl.Name, factorName, critName)
			}
			must(c.call("PUT", base+"/lots/"+lot.ID.String()+"/evaluation",
				map[string]uuid.UUID{"factor_id": factorID}, nil))
		}
		log.Printf("lot %q: %d evaluations", fl.Name, len(fl.Selections))
	}

	fmt.Printf("\nDone: project %s with %d lots over %d criteria\n", project.ID, len(f.Lots), len(criteria))
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
