package sqlinline

const QLatestAssets = `--sql 43fe5618-b2ee-4659-8954-364c6a7fd06e
select url, role, type, created_at
from assets
where user_id = $1::uuid
  and project_id = $2::uuid
order by created_at desc
limit $3::int;
`

// QInsertResultAsset skips the insert when the same result url is already recorded.
const QInsertResultAsset = `--sql af6a45e5-b6e5-4e1f-9242-f145ebecfcc5
insert into assets(user_id, project_id, type, role, url)
select $1::uuid, $2::uuid, $3::text, 'result', $4::text
where not exists (
  select 1 from assets
  where user_id = $1::uuid
    and project_id = $2::uuid
    and role = 'result'
    and url = $4::text
);
`

const QUpdateProjectThumbnail = `--sql 98a452bd-9064-47de-b6d0-ef724dbe07fd
update projects
set thumbnail_url = $3::text,
    updated_at = now()
where id = $2::uuid
  and user_id = $1::uuid;
`

const QUpdateProjectType = `--sql ac33331a-5a08-4f9b-99f0-b5996b4fdc5a
update projects
set type = $3::text,
    updated_at = now()
where id = $2::uuid
  and user_id = $1::uuid;
`

const QCreateJob = `--sql 737a5a99-4c6e-4a26-a912-8202de5f161f
select create_job($1::text, $2::uuid, $3::text);
`

const QMarkJobCompleted = `--sql 930200e4-00dc-414c-8c19-9dd3a3bb5709
select mark_job_completed_all($1::text);
`

const QLoadProject = `--sql 147ff5b4-e4b5-4d70-83d3-670f0176798a
select coalesce(type, 'photo'), coalesce(thumbnail_url, '')
from projects
where id = $2::uuid
  and user_id = $1::uuid
limit 1;
`

const QLoadUserPlan = `--sql 176622a1-c9b8-416b-ac81-b98fa89d3d15
select coalesce(plan, 'free')
from users
where id = $1::uuid
limit 1;
`

const QInsertSourceAsset = `--sql 203b46b3-1828-4daa-8953-fff20de5fb7c
insert into assets(user_id, project_id, type, role, url)
values ($1::uuid, $2::uuid, 'image', 'source', $3::text);
`
